package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/austindbirch/logframe/internal/tracing"
	"github.com/austindbirch/logframe/internal/transform"
)

// Batch is an ordered set of records delivered as one unit.
type Batch []transform.Record

// Envelope carries one batch through the message queue between a publisher
// and the worker.
type Envelope struct {
	BatchID      string             `json:"batch_id"`
	Records      []transform.Record `json:"records"`
	PublishedAt  string             `json:"published_at"`            // RFC3339
	TraceHeaders map[string]string  `json:"trace_headers,omitempty"` // OTel trace propagation headers
}

// NewEnvelope wraps records with a fresh batch ID and the trace context of ctx.
func NewEnvelope(ctx context.Context, records []transform.Record) Envelope {
	return Envelope{
		BatchID:      uuid.NewString(),
		Records:      records,
		PublishedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		TraceHeaders: tracing.InjectHeaders(ctx),
	}
}

// DecodeEnvelope parses a queued envelope. Numbers are kept as json.Number so
// large integers in records survive the round trip untouched.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.BatchID == "" {
		env.BatchID = uuid.NewString()
	}
	return env, nil
}

// Batch returns the envelope's records as a deliverable batch.
func (e Envelope) Batch() Batch {
	return Batch(e.Records)
}

// Encode serializes the wire form of b as a single JSON array.
func Encode(b Batch) ([]byte, error) {
	body, err := json.Marshal(transform.Batch(b))
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return body, nil
}
