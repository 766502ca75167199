package segmentz

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedReference is returned by ParseReference for values that are
// not a serialized SegmentReference.
var ErrMalformedReference = errors.New("malformed segment reference")

// referenceFields is the number of '-' separated fields on the wire.
const referenceFields = 9

// EndpointID identifies an endpoint inside a SegmentReference.
type EndpointID int32

const (
	// EndpointUnknown marks that no entry operation is known.
	EndpointUnknown EndpointID = -1
	// EndpointEntry marks an endpoint resolved to a literal entry operation name.
	EndpointEntry EndpointID = 0
)

// Known reports whether the id refers to an endpoint at all.
func (id EndpointID) Known() bool {
	return id != EndpointUnknown
}

// IsEntry reports whether the id is the literal-entry marker.
func (id EndpointID) IsEntry() bool {
	return id == EndpointEntry
}

// Endpoint is a named operation of a service. Name is unset when empty.
type Endpoint struct {
	Name string
	ID   EndpointID
}

// UnknownEndpoint returns the endpoint used when no entry operation exists.
func UnknownEndpoint() Endpoint {
	return Endpoint{ID: EndpointUnknown}
}

// EntryEndpoint returns an endpoint resolved to the given entry operation.
func EntryEndpoint(name string) Endpoint {
	return Endpoint{Name: name, ID: EndpointEntry}
}

// HasName reports whether the endpoint carries an operation name.
func (e Endpoint) HasName() bool {
	return e.Name != ""
}

func (e Endpoint) token() string {
	id := strconv.FormatInt(int64(e.ID), 10)
	if !e.HasName() {
		return id
	}
	return id + "#" + e.Name
}

// parseEndpoint accepts "<id>", "<id>#<name>" and the id-less "#<name>"
// other sw6 agents send for a literal entry operation.
func parseEndpoint(token string) (Endpoint, error) {
	idPart, name, found := strings.Cut(token, "#")
	if idPart == "" && found && name != "" {
		return EntryEndpoint(name), nil
	}
	id, err := strconv.ParseInt(idPart, 10, 32)
	if err != nil {
		return Endpoint{}, errors.Wrapf(ErrMalformedReference, "endpoint id %q", idPart)
	}
	return Endpoint{Name: name, ID: EndpointID(id)}, nil
}

// SegmentReference links a segment to the upstream span that called it.
// Treat it as immutable once built or decoded.
type SegmentReference struct {
	TraceID                 string
	SegmentID               string
	SpanID                  int32
	NetworkAddress          string
	EntryServiceInstanceID  int32
	ParentServiceInstanceID int32
	EntryEndpoint           Endpoint
	ParentEndpoint          Endpoint
}

// Encode serializes the reference for a carrier. The output is deterministic
// and accepted by ParseReference.
func (r *SegmentReference) Encode() string {
	fields := [referenceFields]string{
		"1",
		encodeField(r.TraceID),
		encodeField(r.SegmentID),
		strconv.FormatInt(int64(r.SpanID), 10),
		strconv.FormatInt(int64(r.ParentServiceInstanceID), 10),
		strconv.FormatInt(int64(r.EntryServiceInstanceID), 10),
		encodeField(r.NetworkAddress),
		encodeField(r.EntryEndpoint.token()),
		encodeField(r.ParentEndpoint.token()),
	}
	return strings.Join(fields[:], "-")
}

// ParseReference decodes a carrier value produced by Encode.
func ParseReference(value string) (*SegmentReference, error) {
	if value == "" {
		return nil, errors.Wrap(ErrMalformedReference, "empty value")
	}

	parts, err := splitReference(value)
	if err != nil {
		return nil, err
	}
	if parts[0] != "1" {
		return nil, errors.Wrapf(ErrMalformedReference, "unsupported sample flag %q", parts[0])
	}

	decoded := make([]string, 0, 5)
	for _, i := range []int{1, 2, 6, 7, 8} {
		field, err := decodeField(parts[i])
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		decoded = append(decoded, field)
	}

	ints := make([]int32, 0, 3)
	for _, i := range []int{3, 4, 5} {
		n, err := strconv.ParseInt(parts[i], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedReference, "field %d: %v", i, err)
		}
		ints = append(ints, int32(n))
	}

	entry, err := parseEndpoint(decoded[3])
	if err != nil {
		return nil, err
	}
	parent, err := parseEndpoint(decoded[4])
	if err != nil {
		return nil, err
	}

	return &SegmentReference{
		TraceID:                 decoded[0],
		SegmentID:               decoded[1],
		SpanID:                  ints[0],
		ParentServiceInstanceID: ints[1],
		EntryServiceInstanceID:  ints[2],
		NetworkAddress:          decoded[2],
		EntryEndpoint:           entry,
		ParentEndpoint:          parent,
	}, nil
}

// splitReference cuts value into its fields. The numeric fields may be
// negative, which puts a second '-' into the value; since a number is never
// empty, an empty token in a numeric position is a sign and joins the next.
func splitReference(value string) ([]string, error) {
	tokens := strings.Split(value, "-")
	if len(tokens) < referenceFields {
		return nil, errors.Wrapf(ErrMalformedReference, "expected %d fields, got %d", referenceFields, len(tokens))
	}

	fields := make([]string, 0, referenceFields)
	fields = append(fields, tokens[:3]...)
	i := 3
	for n := 0; n < 3; n++ {
		if i >= len(tokens) {
			return nil, errors.Wrapf(ErrMalformedReference, "field %d missing", len(fields))
		}
		tok := tokens[i]
		i++
		if tok == "" && i < len(tokens) {
			tok = "-" + tokens[i]
			i++
		}
		fields = append(fields, tok)
	}
	fields = append(fields, tokens[i:]...)

	if len(fields) != referenceFields {
		return nil, errors.Wrapf(ErrMalformedReference, "expected %d fields, got %d", referenceFields, len(fields))
	}
	return fields, nil
}

// DecodeReference is ParseReference for callers that treat malformed input
// as absent. It never fails; nil means no usable reference.
func DecodeReference(value string) *SegmentReference {
	ref, err := ParseReference(value)
	if err != nil {
		return nil
	}
	return ref
}

func encodeField(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decodeField(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", errors.Wrap(ErrMalformedReference, err.Error())
	}
	return string(b), nil
}

// ReferenceProtocol is the export shape of a SegmentReference.
type ReferenceProtocol struct {
	RefType                 string `json:"refType"`
	ParentTraceSegmentID    string `json:"parentTraceSegmentId"`
	ParentSpanID            int32  `json:"parentSpanId"`
	ParentServiceInstanceID int32  `json:"parentServiceInstanceId"`
	NetworkAddress          string `json:"networkAddress"`
	EntryServiceInstanceID  int32  `json:"entryServiceInstanceId"`
	ParentEndpoint          string `json:"parentEndpoint,omitempty"`
	ParentEndpointID        int32  `json:"parentEndpointId"`
	EntryEndpoint           string `json:"entryEndpoint,omitempty"`
	EntryEndpointID         int32  `json:"entryEndpointId"`
}

// Transform maps the reference to its export shape.
func (r *SegmentReference) Transform() *ReferenceProtocol {
	return &ReferenceProtocol{
		RefType:                 "CrossProcess",
		ParentTraceSegmentID:    r.SegmentID,
		ParentSpanID:            r.SpanID,
		ParentServiceInstanceID: r.ParentServiceInstanceID,
		NetworkAddress:          r.NetworkAddress,
		EntryServiceInstanceID:  r.EntryServiceInstanceID,
		ParentEndpoint:          r.ParentEndpoint.Name,
		ParentEndpointID:        int32(r.ParentEndpoint.ID),
		EntryEndpoint:           r.EntryEndpoint.Name,
		EntryEndpointID:         int32(r.EntryEndpoint.ID),
	}
}
