package client

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ConnectionError reports that the auth service could not be reached at all.
// No HTTP exchange took place.
type ConnectionError struct {
	URL string
	err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %v", e.URL, e.err)
}

func (e *ConnectionError) Unwrap() error {
	return e.err
}

// NewConnectionError wraps a transport error as a connection failure.
func NewConnectionError(url string, err error) error {
	return &ConnectionError{URL: url, err: err}
}

// IsConnectionError returns true if the error means the service was unreachable.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// isDialFailure recognises refused connections, dial errors and DNS failures.
func isDialFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	return false
}
