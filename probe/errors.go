package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrUnreachable means no HTTP answer came back from the validation API.
type ErrUnreachable struct {
	Timeout bool
	Err     error
}

func (e ErrUnreachable) Error() string {
	if e.Timeout {
		return fmt.Errorf("validation api timed out: %w", e.Err).Error()
	}
	return fmt.Errorf("validation api unreachable: %w", e.Err).Error()
}

func (e ErrUnreachable) Unwrap() error {
	return e.Err
}

// ErrCertificate means the API's TLS chain did not verify. The portal is known
// to serve an incomplete chain; ProbeInsecure skips verification.
type ErrCertificate struct {
	Err error
}

func (e ErrCertificate) Error() string {
	return fmt.Errorf("validation api certificate rejected (see --probe-insecure): %w", e.Err).Error()
}

func (e ErrCertificate) Unwrap() error {
	return e.Err
}

// ErrCandidateRejected means the API refused the identifiers themselves
// (HTTP 400, 404 or 422). Retrying with the same N1/N2 will not help.
type ErrCandidateRejected struct {
	Status int
	Err    error
}

func (e ErrCandidateRejected) Error() string {
	return fmt.Errorf("candidate rejected (HTTP %d): %w", e.Status, e.Err).Error()
}

func (e ErrCandidateRejected) Unwrap() error {
	return e.Err
}

// ErrRefused means the API refused this client (HTTP 401, 403 or 429),
// typically its firewall or rate limiter.
type ErrRefused struct {
	Status int
	Err    error
}

func (e ErrRefused) Error() string {
	return fmt.Errorf("validation api refused the request (HTTP %d): %w", e.Status, e.Err).Error()
}

func (e ErrRefused) Unwrap() error {
	return e.Err
}

// ErrUnavailable means the API failed on its side (HTTP 5xx).
type ErrUnavailable struct {
	Status int
	Err    error
}

func (e ErrUnavailable) Error() string {
	return fmt.Errorf("validation api unavailable (HTTP %d): %w", e.Status, e.Err).Error()
}

func (e ErrUnavailable) Unwrap() error {
	return e.Err
}

// ErrDecode means the API answered with something other than a JSON object.
type ErrDecode struct {
	Err error
}

func (e ErrDecode) Error() string {
	return fmt.Errorf("decode validation response: %w", e.Err).Error()
}

func (e ErrDecode) Unwrap() error {
	return e.Err
}

// ErrorTypeLabel maps a pre-check error onto its metric label.
func ErrorTypeLabel(err error) string {
	var (
		unreachable ErrUnreachable
		certificate ErrCertificate
		rejected    ErrCandidateRejected
		refused     ErrRefused
		unavailable ErrUnavailable
		decode      ErrDecode
	)
	switch {
	case err == nil:
		return "unknown"
	case errors.As(err, &unreachable):
		if unreachable.Timeout {
			return "timeout"
		}
		return "unreachable"
	case errors.As(err, &certificate):
		return "certificate"
	case errors.As(err, &rejected):
		return "candidate_rejected"
	case errors.As(err, &refused):
		return "refused"
	case errors.As(err, &unavailable):
		return "unavailable"
	case errors.As(err, &decode):
		return "decode"
	default:
		return "other"
	}
}

// classifyError turns a colly transport error or non-2xx status into a
// pre-check category.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}
	if statusCode != 0 {
		return classifyStatus(statusCode, err)
	}

	var (
		verifyErr   *tls.CertificateVerificationError
		authority   x509.UnknownAuthorityError
		hostname    x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	if errors.As(err, &verifyErr) || errors.As(err, &authority) || errors.As(err, &hostname) || errors.As(err, &invalidCert) {
		return ErrCertificate{Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUnreachable{Timeout: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrUnreachable{Timeout: true, Err: err}
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ErrUnreachable{Err: err}
	}
	return err
}

func classifyStatus(statusCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(statusCode))
	}
	switch {
	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusNotFound,
		statusCode == http.StatusUnprocessableEntity:
		return ErrCandidateRejected{Status: statusCode, Err: err}
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusTooManyRequests:
		return ErrRefused{Status: statusCode, Err: err}
	case statusCode >= http.StatusInternalServerError:
		return ErrUnavailable{Status: statusCode, Err: err}
	default:
		return fmt.Errorf("validation api: unexpected HTTP %d: %w", statusCode, err)
	}
}
