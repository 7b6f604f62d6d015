package exchange

import "github.com/pkg/errors"

// Capsule name tags. CapsuleName is the fixed tag every capsule carries
// until consumption; extraction verifies it exactly. A consumed capsule
// is renamed so a second extraction fails deterministically instead of
// double-freeing. Both strings are ABI-fixed.
const (
	CapsuleName         = "dltensor"
	consumedCapsuleName = "used_dltensor"
)

// Capsule is a named, single-use handle that transfers ownership of a
// Resource across a runtime boundary exactly once.
//
// A capsule has a single holder at any time and is not safe for
// concurrent use; passing it to foreign code passes the obligation to
// either consume it or close it. Consuming moves ownership of the
// resource to the consumer; closing an unconsumed capsule releases the
// resource. Either way the resource is torn down at most once.
type Capsule struct {
	name string
	res  *Resource
}

// NewCapsule wraps r in a fresh capsule carrying the standard name tag.
func NewCapsule(r *Resource) *Capsule {
	return &Capsule{name: CapsuleName, res: r}
}

// Name returns the capsule's current tag: CapsuleName until the capsule
// is consumed or closed.
func (c *Capsule) Name() string {
	return c.name
}

// Consumed reports whether ownership has already left the capsule.
func (c *Capsule) Consumed() bool {
	return c.res == nil
}

// peek validates the capsule's tag and returns the wrapped resource
// without transferring ownership.
func (c *Capsule) peek() (*Resource, error) {
	switch c.name {
	case CapsuleName:
		return c.res, nil
	case consumedCapsuleName:
		return nil, errors.WithStack(ErrCapsuleConsumed)
	default:
		return nil, errors.Wrapf(ErrCapsuleNameMismatch, "got %q, want %q", c.name, CapsuleName)
	}
}

// Consume verifies the capsule's tag, marks it consumed, and transfers
// ownership of the resource to the caller, who must arrange its eventual
// release (directly or by re-wrapping it in a new capsule).
//
// It fails with ErrCapsuleNameMismatch when the tag is not CapsuleName
// and with ErrCapsuleConsumed when ownership has already been extracted.
// Failure leaves the capsule unchanged.
func (c *Capsule) Consume() (*Resource, error) {
	res, err := c.peek()
	if err != nil {
		return nil, err
	}
	c.res = nil
	c.name = consumedCapsuleName
	return res, nil
}

// Close releases the wrapped resource if, and only if, the capsule was
// never consumed; after consumption ownership has moved and Close is a
// no-op. Close is idempotent, and a closed capsule behaves as consumed.
// Holders that hand a capsule to code which may not consume it use Close
// as the teardown hook.
func (c *Capsule) Close() {
	if c.res == nil {
		return
	}
	c.res.Release()
	c.res = nil
	c.name = consumedCapsuleName
}
