package main

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/austindbirch/logframe/internal/config"
	"github.com/austindbirch/logframe/internal/logging"
)

// receiver imitates the ingestion API closely enough to exercise a shipper:
// it checks the Basic credentials, content type and body shape, and can
// fail the first N requests with a chosen status.
type receiver struct {
	apiKey     string
	failFirstN int64
	failStatus int
	delay      time.Duration
	logger     *logging.Logger

	requests atomic.Int64
	accepted atomic.Int64
	records  atomic.Int64
}

func newReceiver(cfg config.FakeReceiver, logger *logging.Logger) *receiver {
	status := cfg.FailStatus
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	return &receiver{
		apiKey:     cfg.APIKey,
		failFirstN: int64(cfg.FailFirstN),
		failStatus: status,
		delay:      cfg.ResponseDelay(),
		logger:     logger,
	}
}

func main() {
	cfg := config.FromEnv()
	logger := logging.New("logframe-fake-receiver")
	logger.SetLevel(cfg.LogLevel)

	rcv := newReceiver(cfg.FakeReceiver, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/stats", rcv.handleStats)
	mux.HandleFunc(config.IngestPath, rcv.handleFrames)

	srv := &http.Server{
		Addr:              cfg.FakeReceiver.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Plain().WithFields(map[string]any{
		"addr":         srv.Addr,
		"fail_first_n": cfg.FakeReceiver.FailFirstN,
		"fail_status":  rcv.failStatus,
	}).Info("fake-receiver listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Plain().WithError(err).Fatal("fake-receiver failed")
	}
}

func (rc *receiver) handleFrames(w http.ResponseWriter, r *http.Request) {
	n := rc.requests.Add(1)
	log := rc.logger.Plain().WithFields(map[string]any{"request": n, "path": r.URL.Path})

	if rc.delay > 0 {
		time.Sleep(rc.delay)
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ok, msg := verifyAuth(rc.apiKey, r.Header.Get("Authorization")); !ok {
		log.WithField("reason", msg).Warn("rejecting request: bad credentials")
		http.Error(w, "unauthorized: "+msg, http.StatusUnauthorized)
		return
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		http.Error(w, "content type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	b, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	// Simulate flakiness: first N requests get the configured status
	if n <= rc.failFirstN {
		log.WithField("status", rc.failStatus).Infof("FAILING (%d/%d) body=%s", n, rc.failFirstN, truncate(string(b), 160))
		http.Error(w, "temporary failure", rc.failStatus)
		return
	}

	count, err := countRecords(b)
	if err != nil {
		log.WithError(err).Warn("rejecting request: bad body")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rc.accepted.Add(1)
	rc.records.Add(int64(count))
	log.WithFields(map[string]any{
		"records":    count,
		"user_agent": r.Header.Get("User-Agent"),
	}).Infof("fake-receiver OK body=%s", truncate(string(b), 160))
	w.WriteHeader(http.StatusAccepted)
}

func (rc *receiver) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{
		"requests": rc.requests.Load(),
		"accepted": rc.accepted.Load(),
		"records":  rc.records.Load(),
	})
}

// verifyAuth checks a Basic header whose credential is the bare API key.
// An empty expected key accepts any well-formed header.
func verifyAuth(apiKey, header string) (bool, string) {
	encoded, ok := strings.CutPrefix(header, "Basic ")
	if !ok {
		return false, "missing basic credentials"
	}
	got, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false, "malformed credentials"
	}
	if apiKey == "" {
		return true, ""
	}
	if subtle.ConstantTimeCompare(got, []byte(apiKey)) != 1 {
		return false, "api key mismatch"
	}
	return true, ""
}

// countRecords requires a JSON array of objects and returns its length.
func countRecords(body []byte) (int, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
		return 0, fmt.Errorf("body must be a JSON array")
	}
	var recs []map[string]any
	if err := json.Unmarshal(body, &recs); err != nil {
		return 0, fmt.Errorf("body must be a JSON array of objects: %w", err)
	}
	return len(recs), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence and
// adds an ellipsis if anything was cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := max(n, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
