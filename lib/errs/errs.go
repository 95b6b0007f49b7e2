// Package errs defines the error taxonomy shared by every layer of kBridge.
//
// Each error class is a sentinel. Concrete errors are created with the
// class-specific constructors and keep their class through wrapping, so
// callers test the class with errors.Is (from this package or from
// github.com/cockroachdb/errors) no matter how many layers added context.
//
// Classes:
//
//   - ErrValidation: malformed frame, out-of-range type, oversized id or payload
//   - ErrNotFound:   unknown id on load/remove, unmatched request id
//   - ErrCapacity:   the waiter pool is exhausted (back off and retry)
//   - ErrTimeout:    no response within the caller's deadline
//   - ErrTransport:  send failed after the bounded retries, peer unreachable
//   - ErrCrypto:     pass-through failure of the cryptographic provider
//   - ErrCA:         pass-through failure of the certificate authority
package errs

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrCapacity   = errors.New("capacity exhausted")
	ErrTimeout    = errors.New("timeout")
	ErrTransport  = errors.New("transport error")
	ErrCrypto     = errors.New("crypto error")
	ErrCA         = errors.New("certificate authority error")
)

// classes is the lookup order used by Class
var classes = []error{
	ErrValidation,
	ErrNotFound,
	ErrCapacity,
	ErrTimeout,
	ErrTransport,
	ErrCrypto,
	ErrCA,
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

func Validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

func NotFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func Capacityf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCapacity)
}

func Timeoutf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrTimeout)
}

func Transportf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrTransport)
}

func Cryptof(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCrypto)
}

func CAf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCA)
}

// Newf creates an error of the given class.
func Newf(class error, format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), class)
}

// Wrap annotates err with msg and marks the result with class.
// A nil err yields nil.
func Wrap(class error, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), class)
}

// Wrapf is Wrap with a format string.
func Wrapf(class error, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), class)
}

// --------------------------------------------------------------------------
// Classification
// --------------------------------------------------------------------------

// Is reports whether err belongs to the given class.
func Is(err, class error) bool {
	return errors.Is(err, class)
}

// Class returns the sentinel of the class err belongs to, or nil if err
// is not part of the taxonomy.
func Class(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range classes {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}

// IsRetryable reports whether re-issuing the same call may succeed.
// Capacity, timeout and transport failures are transient, everything
// else is permanent for the given input.
func IsRetryable(err error) bool {
	switch Class(err) {
	case ErrCapacity, ErrTimeout, ErrTransport:
		return true
	default:
		return false
	}
}
