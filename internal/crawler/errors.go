package crawler

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies why a request failed. The retry policy keys off the
// kind, never the raw error.
type FailureKind string

// Failure kinds. The empty string means success.
const (
	KindConnection      FailureKind = "connection"
	KindTimeout         FailureKind = "timeout"
	KindHTTPStatus      FailureKind = "http_status"
	KindRedirectLimit   FailureKind = "redirect_limit"
	KindSSLVerification FailureKind = "ssl_verification"
	KindProxyExhaustion FailureKind = "proxy_exhaustion"
	KindProxyFailure    FailureKind = "proxy_failure"
	KindMalformedURL    FailureKind = "malformed_url"
	KindExtraction      FailureKind = "extraction"
	KindCanceled        FailureKind = "canceled"
)

// errRedirectLimit is returned from CheckRedirect when the redirect chain
// exceeds MaxRedirects. The client wraps it in a *url.Error, so callers must
// detect it with errors.Is.
var errRedirectLimit = errors.New("redirect limit exceeded")

// CrawlError is the terminal error of one request: its classified kind, the
// last HTTP status seen (zero if none), and how many attempts were spent.
type CrawlError struct {
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Attempts   int         `json:"attempts"`
	Detail     string      `json:"detail,omitempty"`

	cause error
}

func newCrawlError(kind FailureKind, status, attempts int, cause error) *CrawlError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &CrawlError{
		Kind:       kind,
		StatusCode: status,
		Attempts:   attempts,
		Detail:     detail,
		cause:      cause,
	}
}

func (e *CrawlError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("crawl failed (%s, status %d, %d attempts): %s",
			e.Kind, e.StatusCode, e.Attempts, e.Detail)
	}
	return fmt.Sprintf("crawl failed (%s, %d attempts): %s", e.Kind, e.Attempts, e.Detail)
}

func (e *CrawlError) Unwrap() error {
	return e.cause
}

// classifyError maps a transport-level error to its failure kind. usedProxy
// reports whether the attempt went through a proxy, in which case a failed
// connection is the proxy's fault rather than the origin's.
func classifyError(err error, usedProxy bool) FailureKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, errRedirectLimit) {
		return KindRedirectLimit
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var certVerify *tls.CertificateVerificationError
	var unknownCA x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certVerify) || errors.As(err, &unknownCA) ||
		errors.As(err, &hostname) || errors.As(err, &certInvalid) {
		return KindSSLVerification
	}

	// DNS resolution problems retry like any other connection fault.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnection
	}

	var opErr *net.OpError
	if usedProxy && errors.As(err, &opErr) {
		// The proxy is the dial target, so a failed connection blames it.
		return KindProxyFailure
	}

	return KindConnection
}

// classifyStatus maps an HTTP status to a failure kind. Anything below 400 is
// success: a 3xx here means redirects were disabled and the response itself
// is the answer.
func classifyStatus(status int) FailureKind {
	if status >= 200 && status < 400 {
		return ""
	}
	return KindHTTPStatus
}
