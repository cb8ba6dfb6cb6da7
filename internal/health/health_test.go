package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ok(context.Context) error { return nil }

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name               string
		checks             map[string]Check
		expectedStatusCode int
		expectedOK         bool
		expectedMessage    string
		expectedChecks     map[string]string
	}{
		{
			name:               "healthy with no checks",
			checks:             nil,
			expectedStatusCode: http.StatusOK,
			expectedOK:         true,
			expectedMessage:    "ok",
		},
		{
			name:               "healthy with passing checks",
			checks:             map[string]Check{"nsq": ok, "transport": ok},
			expectedStatusCode: http.StatusOK,
			expectedOK:         true,
			expectedMessage:    "ok",
			expectedChecks:     map[string]string{"nsq": "ok", "transport": "ok"},
		},
		{
			name: "unhealthy with a failing check",
			checks: map[string]Check{
				"nsq":       func(context.Context) error { return errors.New("no nsqd connections") },
				"transport": ok,
			},
			expectedStatusCode: http.StatusServiceUnavailable,
			expectedOK:         false,
			expectedMessage:    "nsq check failed",
			expectedChecks:     map[string]string{"nsq": "no nsqd connections", "transport": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			HTTPHandler(tt.checks)(w, req)

			if w.Code != tt.expectedStatusCode {
				t.Errorf("HTTPHandler() status code = %d, want %d", w.Code, tt.expectedStatusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("HTTPHandler() Content-Type = %q, want %q", ct, "application/json")
			}

			var status Status
			if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
				t.Fatalf("HTTPHandler() response JSON parse error: %v", err)
			}
			if status.OK != tt.expectedOK {
				t.Errorf("Status.OK = %v, want %v", status.OK, tt.expectedOK)
			}
			if status.Message != tt.expectedMessage {
				t.Errorf("Status.Message = %q, want %q", status.Message, tt.expectedMessage)
			}
			if len(status.Checks) != len(tt.expectedChecks) {
				t.Fatalf("Status.Checks = %v, want %v", status.Checks, tt.expectedChecks)
			}
			for k, v := range tt.expectedChecks {
				if status.Checks[k] != v {
					t.Errorf("Status.Checks[%q] = %q, want %q", k, status.Checks[k], v)
				}
			}
		})
	}
}

func TestHTTPHandler_CheckSeesDeadline(t *testing.T) {
	var hadDeadline bool
	handler := HTTPHandler(map[string]Check{
		"probe": func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			return nil
		},
	})

	handler(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

	if !hadDeadline {
		t.Error("check context has no deadline")
	}
}
