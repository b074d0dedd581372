package checker

import "errors"

var (
	// ErrNotFound is NXDOMAIN: the name does not exist.
	ErrNotFound = errors.New("dns: name not found")
	// ErrNoData means the name exists but has no records of the asked type.
	ErrNoData = errors.New("dns: no records of requested type")
	ErrServFail = errors.New("dns: server failure")
	ErrRefused  = errors.New("dns: query refused")
	ErrTimeout  = errors.New("dns: timeout")
)

// IsNotFound reports whether err means "nothing published", as opposed to
// a lookup that could not be completed.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoData)
}
