package downstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind selects how a downstream failure is surfaced to the client.
type Kind int

const (
	// KindUnavailable covers connection failures and timeouts.
	KindUnavailable Kind = iota + 1
	// KindBadGateway covers replies that completed but could not be parsed.
	KindBadGateway
)

// HTTPStatus maps the kind to the status returned to the client.
func (k Kind) HTTPStatus() int {
	if k == KindBadGateway {
		return http.StatusBadGateway
	}
	return http.StatusServiceUnavailable
}

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindBadGateway:
		return "bad_gateway"
	}
	return "unknown"
}

// Error is the single failure shape every downstream operation returns.
type Error struct {
	Kind   Kind
	Domain Domain
	// Detail is set for transport failures.
	Detail ErrorDetail
	// Cause is the human-readable reason.
	Cause string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBadGateway:
		return fmt.Sprintf("%s returned a malformed response: %s", e.Domain.DisplayName(), e.Cause)
	default:
		if e.Detail.NotSent {
			return fmt.Sprintf("%s unavailable: %s (request not delivered)", e.Domain.DisplayName(), e.Cause)
		}
		return fmt.Sprintf("%s unavailable: %s", e.Domain.DisplayName(), e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func unavailable(d Domain, err error) *Error {
	detail := Summarize(err)
	return &Error{
		Kind:   KindUnavailable,
		Domain: d,
		Detail: detail,
		Cause:  detail.String(),
		Err:    err,
	}
}

func badGateway(d Domain, cause string, err error) *Error {
	return &Error{
		Kind:   KindBadGateway,
		Domain: d,
		Cause:  cause,
		Err:    err,
	}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
