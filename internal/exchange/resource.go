package exchange

import "sync/atomic"

// Payload is the backing object a Resource keeps alive: a batch sample
// view, a foreign array, or a foreign raw buffer. The descriptor built by
// Describe borrows the payload's memory; Release drops whatever keeps
// that memory valid.
type Payload interface {
	// Describe builds the descriptor for the payload's memory. It fails
	// with ErrUnsupportedType when the payload's element type has no
	// mapping and with ErrInvalidPayload when its geometry is malformed.
	Describe() (Descriptor, error)
	// Release frees or un-references the payload's backing memory.
	// Called at most once, by the owning Resource.
	Release()
}

// Resource binds exactly one Descriptor to the payload its memory derives
// from. It is a single-owner handle: ownership moves (through capsules or
// explicit handoff), it is never shared, and release happens at most once
// regardless of how many times Release is called. There is no reference
// counting anywhere in this chain.
type Resource struct {
	desc     Descriptor
	payload  Payload
	released atomic.Bool
}

// NewResource validates the payload, builds its descriptor, and takes
// exclusive ownership of the payload.
func NewResource(p Payload) (*Resource, error) {
	desc, err := p.Describe()
	if err != nil {
		return nil, err
	}
	if err := desc.validate(); err != nil {
		return nil, err
	}
	return &Resource{desc: desc, payload: p}, nil
}

// Descriptor returns the resource's descriptor. The pointer and the
// memory it describes stay valid until Release.
func (r *Resource) Descriptor() *Descriptor {
	return &r.desc
}

// Release releases the payload exactly once; later calls are no-ops.
// The descriptor must not be used after Release.
func (r *Resource) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	if r.payload != nil {
		r.payload.Release()
		r.payload = nil
	}
}

// Released reports whether the payload has been released.
func (r *Resource) Released() bool {
	return r.released.Load()
}
