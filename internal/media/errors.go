package media

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"

	"contentengine/internal/domain"
)

// Image error codes.
const (
	CodeInvalidURL       = "invalid_url"
	CodeInvalidScheme    = "invalid_scheme"
	CodeNotHTTPS         = "not_https"
	CodeHostNotAllowed   = "host_not_allowed"
	CodeInvalidExtension = "invalid_extension"
	CodeInvalidMIME      = "invalid_mime"
	CodeDownloadFailed   = "download_failed"
	CodeSideloadFailed   = "sideload_failed"
)

// Error is a classified image failure. Message never contains the raw URL.
type Error struct {
	Code        string
	Message     string
	Class       domain.ErrorClass
	Fingerprint domain.SourceFingerprint
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("media: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Failure converts e into a diagnostics entry for stage.
func (e *Error) Failure(stage string) domain.ImageFailure {
	return domain.ImageFailure{
		Stage:       stage,
		Code:        e.Code,
		Message:     e.Message,
		ErrorClass:  e.Class,
		Fingerprint: e.Fingerprint,
	}
}

// AsError extracts an *Error from err, classifying foreign errors as
// download failures for rawURL.
func AsError(err error, rawURL string) *Error {
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return newError(CodeDownloadFailed, "Image download failed: "+redactMessage(err.Error(), rawURL), rawURL, err)
}

func newError(code, message, rawURL string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Class:       Classify(code, message, cause),
		Fingerprint: Fingerprint(rawURL),
		Err:         cause,
	}
}

// Classify maps an image failure onto an error class: the code first, then
// the concrete cause, then phrases in the message.
func Classify(code, message string, cause error) domain.ErrorClass {
	switch code {
	case CodeInvalidMIME:
		return domain.ErrorClassMIME
	case CodeNotHTTPS, CodeHostNotAllowed, CodeInvalidExtension:
		return domain.ErrorClassInvalidHost
	case CodeInvalidURL, CodeInvalidScheme:
		return domain.ErrorClassHTTP
	case CodeSideloadFailed:
		return domain.ErrorClassSideload
	}

	if cause != nil {
		var (
			unknownAuthority x509.UnknownAuthorityError
			hostnameErr      x509.HostnameError
			invalidCert      x509.CertificateInvalidError
			verifyErr        *tls.CertificateVerificationError
			dnsErr           *net.DNSError
			netErr           net.Error
		)
		switch {
		case errors.As(cause, &unknownAuthority), errors.As(cause, &hostnameErr),
			errors.As(cause, &invalidCert), errors.As(cause, &verifyErr):
			return domain.ErrorClassSSL
		case errors.Is(cause, context.DeadlineExceeded):
			return domain.ErrorClassTimeout
		case errors.As(cause, &dnsErr):
			return domain.ErrorClassDNS
		case errors.As(cause, &netErr) && netErr.Timeout():
			return domain.ErrorClassTimeout
		}
	}

	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, "curl error 60", "ssl certificate", "ssl_", "x509", "tls:"):
		return domain.ErrorClassSSL
	case containsAny(msg, "timed out", "timeout", "deadline exceeded"):
		return domain.ErrorClassTimeout
	case containsAny(msg, "could not resolve host", "name or service not known", "getaddrinfo", "no such host"):
		return domain.ErrorClassDNS
	case containsAny(msg, "sideload"):
		return domain.ErrorClassSideload
	case containsAny(msg, "http", "40", "50"):
		return domain.ErrorClassHTTP
	}
	return domain.ErrorClassUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
