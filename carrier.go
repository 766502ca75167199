package segmentz

import "net/http"

// Carrier is the transport-specific key/value store a SegmentReference
// travels in, such as HTTP headers or message metadata.
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// MapCarrier adapts a plain string map.
type MapCarrier map[string]string

// Get returns the value stored under key.
func (c MapCarrier) Get(key string) string {
	return c[key]
}

// Set stores value under key.
func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

// HeaderCarrier adapts http.Header.
type HeaderCarrier http.Header

// Get returns the first header value stored under key.
func (c HeaderCarrier) Get(key string) string {
	return http.Header(c).Get(key)
}

// Set replaces the header stored under key.
func (c HeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// Extract decodes the reference held by the carrier. A nil carrier, a
// missing slot and a malformed value all yield nil.
func Extract(carrier Carrier) *SegmentReference {
	ref, _ := ExtractReference(carrier)
	return ref
}

// ExtractReference is Extract for callers that want to know why a value was
// rejected. A nil carrier or an empty slot is (nil, nil); a malformed value
// returns an error wrapping ErrMalformedReference.
func ExtractReference(carrier Carrier) (*SegmentReference, error) {
	if carrier == nil {
		return nil, nil
	}
	value := carrier.Get(CarrierKey)
	if value == "" {
		return nil, nil
	}
	return ParseReference(value)
}

// Inject writes ref into the carrier's CarrierKey slot.
func Inject(carrier Carrier, ref *SegmentReference) {
	if carrier == nil || ref == nil {
		return
	}
	carrier.Set(CarrierKey, ref.Encode())
}
