package attempt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrorKind is the transport failure class of a try.
type ErrorKind string

const (
	KindConnectionRefused ErrorKind = "connection_refused"
	KindConnectionReset   ErrorKind = "connection_reset"
	KindTimeout           ErrorKind = "timeout"
	KindTLS               ErrorKind = "tls"
	KindDNS               ErrorKind = "dns"
	KindCanceled          ErrorKind = "canceled"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindOther             ErrorKind = "other"
)

// Retryable reports whether another try could plausibly succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindInvalidRequest, KindCanceled:
		return false
	default:
		return true
	}
}

// TransportError is a single failed try.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExhaustedRetriesError is the terminal failure of an Attempt.
type ExhaustedRetriesError struct {
	Calls int
	Last  *TransportError
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("attempt failed after %d call(s): %v", e.Calls, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

func newTransportError(err error) *TransportError {
	return &TransportError{Kind: Classify(err), Err: err}
}

// Classify maps a transport error to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return KindConnectionReset
	}

	// DNSError implements Timeout too; resolve it first.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	if isTLSError(err) {
		return KindTLS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if strings.Contains(err.Error(), "tls:") {
		return KindTLS
	}
	return KindOther
}

func isTLSError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
