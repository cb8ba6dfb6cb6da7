package logging

import (
	"testing"

	"github.com/nsqio/go-nsq"
)

func TestNSQLogger_Output(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{line: "INF    1 [log_batches/shippers] connecting to nsqd", wantLevel: "info", wantMsg: "   1 [log_batches/shippers] connecting to nsqd"},
		{line: "WRN 2 backing off", wantLevel: "warning", wantMsg: "2 backing off"},
		{line: "ERR 3 IO error - EOF", wantLevel: "error", wantMsg: "3 IO error - EOF"},
		{line: "DBG 4 heartbeat", wantLevel: "debug", wantMsg: "4 heartbeat"},
		{line: "unprefixed", wantLevel: "info", wantMsg: "unprefixed"},
		{line: "XYZ odd prefix", wantLevel: "info", wantMsg: "XYZ odd prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			l, buf := newTestLogger("logframe-worker")
			if err := l.NSQ().Output(2, tt.line); err != nil {
				t.Fatalf("Output() error: %v", err)
			}

			lines := decodeLines(t, buf)
			if len(lines) != 1 {
				t.Fatalf("got %d log lines, want 1", len(lines))
			}
			got := lines[0]
			if got["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", got["level"], tt.wantLevel)
			}
			if got["msg"] != tt.wantMsg {
				t.Errorf("msg = %q, want %q", got["msg"], tt.wantMsg)
			}
			if got["component"] != "nsq" {
				t.Errorf("component = %v, want nsq", got["component"])
			}
		})
	}
}

func TestNSQLevel(t *testing.T) {
	tests := map[string]nsq.LogLevel{
		"":        nsq.LogLevelInfo,
		"info":    nsq.LogLevelInfo,
		"debug":   nsq.LogLevelDebug,
		"warn":    nsq.LogLevelWarning,
		"error":   nsq.LogLevelError,
		"bogus":   nsq.LogLevelInfo,
		"WARNING": nsq.LogLevelWarning,
	}
	for in, want := range tests {
		if got := NSQLevel(in); got != want {
			t.Errorf("NSQLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
