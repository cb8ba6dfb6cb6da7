package delivery

import (
	"time"
)

// DropType tags drop log lines so they can be filtered from retry noise.
const DropType = "batch.dropped"

// DropReason names why a batch was abandoned.
type DropReason string

const (
	ReasonAttemptsExhausted DropReason = "attempts_exhausted"
	ReasonFatalStatus       DropReason = "fatal_status"
	ReasonTransportError    DropReason = "transport_error"
	ReasonEncodeFailed      DropReason = "encode_failed"
)

// Drop describes an abandoned batch. It is only logged; nothing is persisted.
type Drop struct {
	Type       string // DropType
	At         string // RFC3339 time of the drop
	Reason     DropReason
	BatchID    string
	Events     int
	Attempt    int // attempt number when dropped
	HTTPStatus int
	LastError  string
	ErrorClass string
}

// NewDrop describes batchID being abandoned at attempt. httpStatus is 0 and
// lastErr nil when the drop was not caused by a response or an error.
func NewDrop(batchID string, events, attempt, httpStatus int, lastErr error, reason DropReason) Drop {
	d := Drop{
		Type:       DropType,
		At:         time.Now().UTC().Format(time.RFC3339Nano),
		Reason:     reason,
		BatchID:    batchID,
		Events:     events,
		Attempt:    attempt,
		HTTPStatus: httpStatus,
	}
	if lastErr != nil {
		d.LastError = lastErr.Error()
		d.ErrorClass = errorClass(lastErr)
	}
	return d
}

// Fields flattens the drop for a structured log line.
func (d Drop) Fields() map[string]any {
	f := map[string]any{
		"type":    d.Type,
		"at":      d.At,
		"reason":  string(d.Reason),
		"events":  d.Events,
		"attempt": d.Attempt,
	}
	if d.HTTPStatus != 0 {
		f["http_status"] = d.HTTPStatus
	}
	if d.LastError != "" {
		f["last_error"] = d.LastError
	}
	if d.ErrorClass != "" {
		f["error_class"] = d.ErrorClass
	}
	return f
}
