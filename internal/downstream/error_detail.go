package downstream

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

const maxCauseLen = 512

// Failure causes recorded as CallRecord.ErrorKind.
const (
	CauseCanceled    = "canceled"
	CauseTimeout     = "timeout"
	CauseDNS         = "dns_error"
	CauseRefused     = "connection_refused"
	CauseUnreachable = "unreachable"
	CauseReset       = "connection_reset"
	CauseTLS         = "tls_error"
	CauseTruncated   = "truncated"
	CauseTransport   = "transport_error"
)

// ErrorDetail says why an exchange with a backend failed.
type ErrorDetail struct {
	Kind string `json:"kind"`
	// NotSent is set when the failure happened before the request reached
	// the backend, so a gated call cannot have taken effect.
	NotSent bool   `json:"not_sent"`
	Message string `json:"message"`
}

// String renders the detail as "kind: message".
func (d ErrorDetail) String() string {
	if d.Message == "" {
		return d.Kind
	}
	return d.Kind + ": " + d.Message
}

// Summarize classifies a transport error returned by http.Client.
func Summarize(err error) ErrorDetail {
	if err == nil {
		return ErrorDetail{}
	}
	kind, notSent := classify(err)
	return ErrorDetail{Kind: kind, NotSent: notSent, Message: causeMessage(err)}
}

func classify(err error) (kind string, notSent bool) {
	var dnsErr *net.DNSError
	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var netErr net.Error

	switch {
	case errors.Is(err, context.Canceled):
		return CauseCanceled, false
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout, false
	case errors.As(err, &dnsErr):
		return CauseDNS, true
	case errors.Is(err, syscall.ECONNREFUSED):
		return CauseRefused, true
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return CauseUnreachable, true
	case errors.As(err, &certErr), errors.As(err, &recordErr):
		return CauseTLS, true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return CauseReset, false
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return CauseTruncated, false
	case errors.As(err, &netErr) && netErr.Timeout():
		return CauseTimeout, false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return CauseTransport, true
	}
	return CauseTransport, false
}

// causeMessage drops the "Method \"url\":" prefix of *url.Error, since the
// target is recorded separately, then collapses whitespace and caps the
// length.
func causeMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if len(msg) > maxCauseLen {
		return msg[:maxCauseLen]
	}
	return msg
}
