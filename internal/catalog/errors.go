package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidArgument marks malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBackendUnavailable marks transport or server failures of the backend.
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotFound           = errors.New("not found")
)

var dcidPattern = regexp.MustCompile(`^[A-Za-z0-9_/:.\-]+$`)

// InvalidArgument builds an error wrapping ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Unavailable wraps err so that errors.Is(err, ErrBackendUnavailable) holds
// while keeping the original cause reachable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// ValidateDCID rejects empty identifiers and those with characters outside
// the catalog alphabet.
func ValidateDCID(field, dcid string) error {
	if dcid == "" {
		return InvalidArgument("%s is required", field)
	}
	if !dcidPattern.MatchString(dcid) {
		return InvalidArgument("%s %q is not a valid dcid", field, dcid)
	}
	return nil
}
