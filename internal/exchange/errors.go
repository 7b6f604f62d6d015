package exchange

import "github.com/pkg/errors"

// Contract-violation errors. Every failure in this package is synchronous
// and reflects a caller contract violation, never a transient condition,
// so there is no retry policy anywhere. Call sites wrap these with
// context; match them with errors.Is.
var (
	ErrInvalidPayload      = errors.New("exchange: invalid payload")
	ErrUnsupportedType     = errors.New("exchange: unsupported element type")
	ErrCapsuleNameMismatch = errors.New("exchange: capsule name mismatch")
	ErrCapsuleConsumed     = errors.New("exchange: capsule already consumed")
	ErrShapeMismatch       = errors.New("exchange: shape mismatch")
	ErrTypeMismatch        = errors.New("exchange: element type mismatch")
)
