// Package transport is the HTTP client the delivery engine posts batches
// through. It owns connection pooling, timeouts, TLS material and proxying,
// and translates client failures into delivery.ErrorKind values.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/austindbirch/logframe/internal/delivery"
)

// Config holds everything the client needs. Zero timeouts and pool sizes
// fall back to the defaults below.
type Config struct {
	RequestTimeout time.Duration // whole request including body
	SocketTimeout  time.Duration // waiting for response headers
	ConnectTimeout time.Duration // dial and TLS handshake
	PoolMax        int           // max concurrent connections
	PoolMaxPerHost int           // max idle connections kept per host

	CACert     string // PEM bundle of trusted CAs
	ClientCert string // PEM client certificate
	ClientKey  string // PEM client key

	Keystore           string // PKCS#12 client identity
	KeystorePassword   string
	Truststore         string // PKCS#12 trusted CAs
	TruststorePassword string

	Proxy string // http(s)://[user:pass@]host:port
}

const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultSocketTimeout  = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultPoolMax        = 50
	DefaultPoolMaxPerHost = 25
)

func (c Config) withDefaults() Config {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.SocketTimeout == 0 {
		c.SocketTimeout = DefaultSocketTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.PoolMax == 0 {
		c.PoolMax = DefaultPoolMax
	}
	if c.PoolMaxPerHost == 0 {
		c.PoolMaxPerHost = DefaultPoolMaxPerHost
	}
	return c
}

// Client posts request bodies over a pooled, instrumented HTTP client.
type Client struct {
	http      *http.Client
	closeOnce sync.Once
}

var _ delivery.Transport = (*Client)(nil)

// New validates cfg and builds a client. Misconfiguration is reported here
// as a *ConfigError so it surfaces at startup rather than on first request.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tlsCfg, err := buildTLS(cfg)
	if err != nil {
		return nil, err
	}

	proxy := http.ProxyFromEnvironment
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, &ConfigError{Field: "proxy", Reason: err.Error()}
		}
		proxy = http.ProxyURL(u)
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		Proxy:                 proxy,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsCfg,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.SocketTimeout,
		MaxConnsPerHost:       cfg.PoolMax,
		MaxIdleConns:          cfg.PoolMax,
		MaxIdleConnsPerHost:   cfg.PoolMaxPerHost,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &Client{
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(base),
		},
	}, nil
}

// Post sends body to target. Any status code is returned as a response; only
// failures to get one are errors, and those are always *delivery.TransportError.
func (c *Client) Post(ctx context.Context, target string, body []byte, headers map[string]string) (*delivery.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, &delivery.TransportError{Kind: delivery.KindFatal, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &delivery.TransportError{Kind: Classify(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	// drain so the connection goes back to the pool
	_, _ = io.Copy(io.Discard, resp.Body)

	return &delivery.Response{StatusCode: resp.StatusCode}, nil
}

// Close releases pooled connections. It is safe to call more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(c.http.CloseIdleConnections)
	return nil
}

// Classify maps an error from the HTTP client onto the engine's error kinds.
func Classify(err error) delivery.ErrorKind {
	if err == nil {
		return delivery.KindFatal
	}
	if errors.Is(err, context.Canceled) {
		return delivery.KindFatal
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return delivery.KindDNSFailure
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return delivery.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return delivery.KindTimeout
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return delivery.KindConnectionReset
	}

	// certificate problems will not fix themselves on a resend
	var verifyErr *tls.CertificateVerificationError
	var authErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &verifyErr) || errors.As(err, &authErr) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return delivery.KindFatal
	}

	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return delivery.KindProtocol
	}
	msg := err.Error()
	if strings.Contains(msg, "malformed HTTP") || strings.Contains(msg, "server sent GOAWAY") ||
		strings.Contains(msg, "stream error") {
		return delivery.KindProtocol
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return delivery.KindConnectionReset
	}
	return delivery.KindFatal
}
