package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/austindbirch/logframe/internal/transform"
)

func TestBackoffWith(t *testing.T) {
	low := func(int) int { return 0 }
	high := func(n int) int { return n - 1 }

	tests := []struct {
		attempt int
		wantMin time.Duration
		wantMax time.Duration
	}{
		{attempt: 1, wantMin: 0, wantMax: 0},
		{attempt: 2, wantMin: 2 * time.Second, wantMax: 4 * time.Second},
		{attempt: 3, wantMin: 4 * time.Second, wantMax: 8 * time.Second},
		{attempt: 7, wantMin: 24 * time.Second, wantMax: 48 * time.Second},
		{attempt: 8, wantMin: 30 * time.Second, wantMax: 60 * time.Second},
		{attempt: 1000, wantMin: 30 * time.Second, wantMax: 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := backoffWith(tt.attempt, low); got != tt.wantMin {
				t.Errorf("lowest jitter = %v, want %v", got, tt.wantMin)
			}
			if got := backoffWith(tt.attempt, high); got != tt.wantMax {
				t.Errorf("highest jitter = %v, want %v", got, tt.wantMax)
			}
		})
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := -2; attempt <= 50; attempt++ {
		for i := 0; i < 50; i++ {
			d := Backoff(attempt)
			if d < 0 || d > 60*time.Second {
				t.Fatalf("Backoff(%d) = %v, outside [0, 60s]", attempt, d)
			}
			if d%time.Second != 0 {
				t.Fatalf("Backoff(%d) = %v, want whole seconds", attempt, d)
			}
		}
	}
}

func TestBackoffWithSeededSource(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for attempt := 1; attempt <= 10; attempt++ {
		base := attempt * attempt
		if base > 60 {
			base = 60
		}
		d := backoffWith(attempt, r.IntN)
		if d < time.Duration(base/2)*time.Second || d > time.Duration(base)*time.Second {
			t.Errorf("backoffWith(%d) = %v, outside [%ds, %ds]", attempt, d, base/2, base)
		}
	}
}

func TestMaxDuration(t *testing.T) {
	wantBackoff := []time.Duration{0, 4 * time.Second, 8 * time.Second}
	for i, want := range wantBackoff {
		if got := MaxBackoff(i + 1); got != want {
			t.Errorf("MaxBackoff(%d) = %v, want %v", i+1, got, want)
		}
	}

	tests := []struct {
		requestTimeout time.Duration
		want           time.Duration
	}{
		{requestTimeout: 0, want: 12 * time.Second},
		{requestTimeout: 60 * time.Second, want: 3*time.Minute + 12*time.Second},
		{requestTimeout: 2 * time.Minute, want: 6*time.Minute + 12*time.Second},
	}
	for _, tt := range tests {
		if got := MaxDuration(tt.requestTimeout); got != tt.want {
			t.Errorf("MaxDuration(%v) = %v, want %v", tt.requestTimeout, got, tt.want)
		}
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		name      string
		retryable bool
	}{
		{KindTimeout, "timeout", true},
		{KindConnectionReset, "connection_reset", true},
		{KindDNSFailure, "dns_failure", true},
		{KindProtocol, "protocol_error", true},
		{KindFatal, "fatal", false},
		{ErrorKind(99), "kind(99)", false},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
		if got := tt.kind.Retryable(); got != tt.retryable {
			t.Errorf("%s.Retryable() = %v, want %v", tt.name, got, tt.retryable)
		}
	}
}

func TestKindOf(t *testing.T) {
	base := errors.New("dial tcp: lookup ingest: no such host")
	te := &TransportError{Kind: KindDNSFailure, Err: base}

	if got := KindOf(te); got != KindDNSFailure {
		t.Errorf("KindOf(TransportError) = %v", got)
	}
	if got := KindOf(fmt.Errorf("wrapped: %w", te)); got != KindDNSFailure {
		t.Errorf("KindOf(wrapped) = %v", got)
	}
	if got := KindOf(base); got != KindFatal {
		t.Errorf("KindOf(plain) = %v, want fatal", got)
	}
	if !errors.Is(te, base) {
		t.Error("TransportError should unwrap to its cause")
	}
}

func TestRetryableStatus(t *testing.T) {
	retryable := map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}
	for code := 100; code < 600; code++ {
		if got := RetryableStatus(code); got != retryable[code] {
			t.Errorf("RetryableStatus(%d) = %v", code, got)
		}
	}
}

func TestHeaders(t *testing.T) {
	h := NewHeaders("secret-key", "logframe-shipper 1.0.0")

	if got, want := h.Get("Authorization"), "Basic c2VjcmV0LWtleQ=="; got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
	if got := h.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := h.Get("User-Agent"); got != "logframe-shipper 1.0.0" {
		t.Errorf("User-Agent = %q", got)
	}

	m := h.Map()
	m["Authorization"] = "changed"
	if h.Get("Authorization") == "changed" {
		t.Error("Map() exposed internal state")
	}
}

func TestNewDrop(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		err       error
		reason    DropReason
		wantClass string
	}{
		{
			name:   "fatal status",
			status: 403,
			reason: ReasonFatalStatus,
		},
		{
			name:      "transport error",
			err:       &TransportError{Kind: KindFatal, Err: context.Canceled},
			reason:    ReasonTransportError,
			wantClass: "*errors.errorString",
		},
		{
			name:   "attempts exhausted",
			reason: ReasonAttemptsExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			d := NewDrop("batch-1", 7, 2, tt.status, tt.err, tt.reason)
			after := time.Now()

			if d.Type != DropType {
				t.Errorf("Type = %q, want %q", d.Type, DropType)
			}
			if d.Reason != tt.reason || d.BatchID != "batch-1" || d.Events != 7 || d.Attempt != 2 {
				t.Errorf("unexpected drop: %+v", d)
			}
			if d.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", d.ErrorClass, tt.wantClass)
			}

			at, err := time.Parse(time.RFC3339Nano, d.At)
			if err != nil {
				t.Fatalf("At parse error: %v", err)
			}
			if at.Before(before.Add(-time.Millisecond)) || at.After(after.Add(time.Millisecond)) {
				t.Errorf("At %v not between %v and %v", at, before, after)
			}

			f := d.Fields()
			if f["at"] != d.At || f["type"] != DropType {
				t.Errorf("Fields() at/type = %v/%v, want %v/%v", f["at"], f["type"], d.At, DropType)
			}
			if f["reason"] != string(tt.reason) {
				t.Errorf("Fields()[reason] = %v", f["reason"])
			}
			if _, ok := f["http_status"]; ok != (tt.status != 0) {
				t.Errorf("Fields()[http_status] presence = %v", ok)
			}
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(context.Background(), []transform.Record{
		{"message": "hello", "count": 12345678901234567},
	})
	if env.BatchID == "" {
		t.Fatal("NewEnvelope() left BatchID empty")
	}
	if _, err := time.Parse(time.RFC3339Nano, env.PublishedAt); err != nil {
		t.Errorf("PublishedAt not RFC3339: %v", err)
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error: %v", err)
	}
	if got.BatchID != env.BatchID {
		t.Errorf("BatchID = %q, want %q", got.BatchID, env.BatchID)
	}
	batch := got.Batch()
	if len(batch) != 1 {
		t.Fatalf("batch len = %d, want 1", len(batch))
	}
	if n, ok := batch[0]["count"].(json.Number); !ok || n.String() != "12345678901234567" {
		t.Errorf("count = %#v, want json.Number 12345678901234567", batch[0]["count"])
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		wantLen int
	}{
		{name: "valid", body: `{"batch_id":"b1","records":[{"message":"a"},{"message":"b"}]}`, wantLen: 2},
		{name: "missing batch id gets one", body: `{"records":[{"message":"a"}]}`, wantLen: 1},
		{name: "not json", body: `nope`, wantErr: true},
		{name: "records not an array", body: `{"records":{"message":"a"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if env.BatchID == "" {
				t.Error("BatchID empty")
			}
			if len(env.Records) != tt.wantLen {
				t.Errorf("records = %d, want %d", len(env.Records), tt.wantLen)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	body, err := Encode(Batch{{"message": "only"}})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	var got []map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("not a JSON array: %v", err)
	}
	want := map[string]any{transform.SchemaKey: transform.Schema, "message": "only"}
	if fmt.Sprint(got[0]) != fmt.Sprint(want) {
		t.Errorf("Encode() = %v, want %v", got[0], want)
	}
}
