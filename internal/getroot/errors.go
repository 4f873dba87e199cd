package getroot

import (
	"errors"
	"fmt"
)

// Kind classifies resolution failures.
type Kind int

const (
	// KindSoft failures make the resolver try its next strategy.
	KindSoft Kind = iota
	// KindInconsistent means the system changed under us; a degraded
	// answer may still be produced.
	KindInconsistent
	// KindConfig failures stop the operation.
	KindConfig
	// KindPlatform marks something this OS cannot do.
	KindPlatform
	// KindNoMapping means no drive is known for a device.
	KindNoMapping
	// KindBadDevice means the device exists but cannot be named.
	KindBadDevice
)

func (k Kind) String() string {
	switch k {
	case KindSoft:
		return "soft"
	case KindInconsistent:
		return "inconsistent"
	case KindConfig:
		return "config"
	case KindPlatform:
		return "platform"
	case KindNoMapping:
		return "no mapping"
	case KindBadDevice:
		return "bad device"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrNoMapping     = errors.New("no mapping exists")
	ErrBadDevice     = errors.New("bad device")
	ErrUnknownRAID   = errors.New("unknown kind of RAID device")
	ErrDepthExceeded = errors.New("abstraction nesting too deep")
)

// Error is a failure carrying its kind and the path it concerns.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s `%s': %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
