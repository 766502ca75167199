package segmentz

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// idPool keeps a buffer of pre-generated ids filled by a background
// goroutine so segment creation does not wait on the random source.
type idPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	once    sync.Once
}

// newIDPool starts a pool holding up to capacity ids.
func newIDPool(capacity int, factory func() string) *idPool {
	p := &idPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go p.refill()
	return p
}

// newUUIDPool returns a pool of dash-free random UUIDs.
func newUUIDPool(capacity int) *idPool {
	return newIDPool(capacity, func() string {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	})
}

// Get takes an id from the pool, generating one directly when it is empty.
func (p *idPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

func (p *idPool) refill() {
	for {
		select {
		case p.ids <- p.factory():
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. Get keeps working afterwards.
func (p *idPool) Close() {
	p.once.Do(func() { close(p.stopCh) })
}
