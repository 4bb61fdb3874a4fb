package git

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// NetworkError reports a remote that could not be reached or dropped the connection.
type NetworkError struct {
	Op, URL string
	Err     error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s %s: network error: %v", e.Op, e.URL, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError reports an operation that exceeded its deadline.
type TimeoutError struct {
	Op, URL string
	Err     error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("%s %s: timed out: %v", e.Op, e.URL, e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// AuthError is permanent for a given source.
type AuthError struct {
	Op, URL string
	Err     error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.URL, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError is permanent for a given source.
type NotFoundError struct {
	Op, URL string
	Err     error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found %s: %v", e.Op, e.URL, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

type UnsupportedProtocolError struct {
	Op, URL string
	Err     error
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("%s unsupported protocol %s: %v", e.Op, e.URL, e.Err)
}
func (e *UnsupportedProtocolError) Unwrap() error { return e.Err }

// classify maps go-git and transport failures onto the typed errors above.
// Errors that fit none of them are wrapped with the operation name.
func classify(op, url string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, URL: url, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", op, url, err)
	}
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return &AuthError{Op: op, URL: url, Err: err}
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, transport.ErrEmptyRemoteRepository):
		return &NotFoundError{Op: op, URL: url, Err: err}
	case errors.Is(err, transport.ErrInvalidAuthMethod):
		return &AuthError{Op: op, URL: url, Err: err}
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return &TimeoutError{Op: op, URL: url, Err: err}
		}
		return &NetworkError{Op: op, URL: url, Err: err}
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "invalid username or password"):
		return &AuthError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "repository not found") || strings.Contains(l, "repository does not exist"):
		return &NotFoundError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		return &UnsupportedProtocolError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "i/o timeout") || strings.Contains(l, "timeout"):
		return &TimeoutError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "connection refused") || strings.Contains(l, "connection reset") ||
		strings.Contains(l, "no such host") || strings.Contains(l, "remote hung up") ||
		strings.Contains(l, "unexpected eof") || strings.Contains(l, "network is unreachable") ||
		strings.Contains(l, "no route to host") || strings.Contains(l, "tls:") ||
		strings.Contains(l, "tls handshake"):
		return &NetworkError{Op: op, URL: url, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, url, err)
}

// IsPermanent reports errors that retrying the same source cannot fix.
func IsPermanent(err error) bool {
	return errors.As(err, new(*AuthError)) ||
		errors.As(err, new(*NotFoundError)) ||
		errors.As(err, new(*UnsupportedProtocolError))
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	return errors.As(err, new(*TimeoutError))
}

// IsUnreachable reports network failures and timeouts, the cases where trying
// another remote may help.
func IsUnreachable(err error) bool {
	return IsTimeout(err) || errors.As(err, new(*NetworkError))
}
