package delivery

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of transport failures the engine knows how to
// classify. Transports map whatever their client library returns onto one of
// these; anything they cannot map is KindFatal.
type ErrorKind int

const (
	KindFatal ErrorKind = iota
	KindTimeout
	KindConnectionReset
	KindDNSFailure
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionReset:
		return "connection_reset"
	case KindDNSFailure:
		return "dns_failure"
	case KindProtocol:
		return "protocol_error"
	case KindFatal:
		return "fatal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether a request failing with k may be resent at once.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindConnectionReset, KindDNSFailure, KindProtocol:
		return true
	case KindFatal:
		return false
	}
	return false
}

// TransportError is returned by a Transport when the request did not produce
// an HTTP response.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that are not a *TransportError are fatal.
func KindOf(err error) ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindFatal
}

// errorClass names the concrete type behind err for drop logs.
func errorClass(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Err != nil {
		return fmt.Sprintf("%T", te.Err)
	}
	return fmt.Sprintf("%T", err)
}

var retryableStatus = map[int]struct{}{
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

// RetryableStatus reports whether the ingestion API asked us to try again later.
func RetryableStatus(code int) bool {
	_, ok := retryableStatus[code]
	return ok
}

// statusReason buckets a retryable status for the retries metric.
func statusReason(code int) string {
	if code == 429 {
		return "http_429"
	}
	return "http_5xx"
}
