package transport

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austindbirch/logframe/internal/delivery"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{name: "zero value", cfg: Config{}},
		{name: "pem client pair", cfg: Config{ClientCert: "c.pem", ClientKey: "k.pem", CACert: "ca.pem"}},
		{name: "keystore and truststore", cfg: Config{Keystore: "ks.p12", KeystorePassword: "pw", Truststore: "ts.p12", TruststorePassword: "pw"}},
		{name: "negative request timeout", cfg: Config{RequestTimeout: -time.Second}, wantField: "request_timeout"},
		{name: "negative socket timeout", cfg: Config{SocketTimeout: -time.Second}, wantField: "socket_timeout"},
		{name: "negative connect timeout", cfg: Config{ConnectTimeout: -1}, wantField: "connect_timeout"},
		{name: "negative pool", cfg: Config{PoolMax: -1}, wantField: "pool_max"},
		{name: "negative per host pool", cfg: Config{PoolMaxPerHost: -1}, wantField: "pool_max_per_host"},
		{name: "cert without key", cfg: Config{ClientCert: "c.pem"}, wantField: "client_cert"},
		{name: "key without cert", cfg: Config{ClientKey: "k.pem"}, wantField: "client_cert"},
		{name: "keystore and pem pair", cfg: Config{ClientCert: "c.pem", ClientKey: "k.pem", Keystore: "ks.p12", KeystorePassword: "pw"}, wantField: "keystore"},
		{name: "keystore without password", cfg: Config{Keystore: "ks.p12"}, wantField: "keystore_password"},
		{name: "cacert and truststore", cfg: Config{CACert: "ca.pem", Truststore: "ts.p12", TruststorePassword: "pw"}, wantField: "truststore"},
		{name: "truststore without password", cfg: Config{Truststore: "ts.p12"}, wantField: "truststore_password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestNewRejectsBadMaterial(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{name: "missing cacert", cfg: Config{CACert: filepath.Join(dir, "nope.pem")}, wantField: "cacert"},
		{name: "cacert without pem", cfg: Config{CACert: garbage}, wantField: "cacert"},
		{name: "bad client pair", cfg: Config{ClientCert: garbage, ClientKey: garbage}, wantField: "client_cert"},
		{name: "bad keystore", cfg: Config{Keystore: garbage, KeystorePassword: "pw"}, wantField: "keystore"},
		{name: "bad truststore", cfg: Config{Truststore: garbage, TruststorePassword: "pw"}, wantField: "truststore"},
		{name: "bad proxy", cfg: Config{Proxy: "://nope"}, wantField: "proxy"},
		{name: "validation runs first", cfg: Config{ClientCert: garbage}, wantField: "client_cert"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			assert.Nil(t, c)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestWithDefaults(t *testing.T) {
	got := Config{PoolMax: 7}.withDefaults()
	assert.Equal(t, DefaultRequestTimeout, got.RequestTimeout)
	assert.Equal(t, DefaultSocketTimeout, got.SocketTimeout)
	assert.Equal(t, DefaultConnectTimeout, got.ConnectTimeout)
	assert.Equal(t, 7, got.PoolMax)
	assert.Equal(t, DefaultPoolMaxPerHost, got.PoolMaxPerHost)
}

func writeServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, block, 0o600))
	return path
}

func TestPostOverTLS(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := New(Config{CACert: writeServerCA(t, srv)})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Post(context.Background(), srv.URL+"/frames", []byte(`[{"message":"hi"}]`), map[string]string{
		"Authorization": "Basic a2V5",
		"Content-Type":  "application/json",
		"User-Agent":    "logframe-shipper test",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `[{"message":"hi"}]`, string(gotBody))
	assert.Equal(t, "Basic a2V5", gotHeader.Get("Authorization"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "logframe-shipper test", gotHeader.Get("User-Agent"))
}

func TestPostReturnsErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Post(context.Background(), srv.URL, []byte(`[]`), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPostUntrustedServerIsFatal(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c, err := New(Config{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Post(context.Background(), srv.URL, []byte(`[]`), nil)
	require.Error(t, err)
	assert.Equal(t, delivery.KindFatal, delivery.KindOf(err))
}

func TestPostConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := New(Config{ConnectTimeout: time.Second})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Post(context.Background(), "http://"+addr+"/frames", []byte(`[]`), nil)
	require.Error(t, err)

	var te *delivery.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Kind.Retryable(), "kind %s should be retryable", te.Kind)
}

func TestPostBadURL(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Post(context.Background(), "://missing-scheme", nil, nil)
	assert.Equal(t, delivery.KindFatal, delivery.KindOf(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	var nilClient *Client
	assert.NoError(t, nilClient.Close())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want delivery.ErrorKind
	}{
		{name: "nil", err: nil, want: delivery.KindFatal},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "ingest.invalid"}, want: delivery.KindDNSFailure},
		{name: "deadline", err: context.DeadlineExceeded, want: delivery.KindTimeout},
		{name: "net timeout", err: &url.Error{Op: "Post", URL: "https://x", Err: timeoutErr{}}, want: delivery.KindTimeout},
		{name: "etimedout", err: &net.OpError{Op: "dial", Err: syscall.ETIMEDOUT}, want: delivery.KindTimeout},
		{name: "reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, want: delivery.KindConnectionReset},
		{name: "refused", err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, want: delivery.KindConnectionReset},
		{name: "eof", err: fmt.Errorf("post: %w", io.EOF), want: delivery.KindConnectionReset},
		{name: "other op error", err: &net.OpError{Op: "write", Err: errors.New("broken")}, want: delivery.KindConnectionReset},
		{name: "canceled", err: context.Canceled, want: delivery.KindFatal},
		{name: "unknown authority", err: x509.UnknownAuthorityError{}, want: delivery.KindFatal},
		{name: "malformed response", err: errors.New(`net/http: HTTP/1.x transport connection broken: malformed HTTP response "\x00"`), want: delivery.KindProtocol},
		{name: "goaway", err: errors.New("http2: server sent GOAWAY and closed the connection"), want: delivery.KindProtocol},
		{name: "anything else", err: errors.New("boom"), want: delivery.KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
