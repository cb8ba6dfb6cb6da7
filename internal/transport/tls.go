package transport

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// ConfigError reports transport settings that cannot work together.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("transport config %s: %s", e.Field, e.Reason)
}

// Validate checks the settings for combinations that could never produce a
// working client. It does not touch the filesystem.
func (c Config) Validate() error {
	switch {
	case c.RequestTimeout < 0:
		return &ConfigError{Field: "request_timeout", Reason: "must not be negative"}
	case c.SocketTimeout < 0:
		return &ConfigError{Field: "socket_timeout", Reason: "must not be negative"}
	case c.ConnectTimeout < 0:
		return &ConfigError{Field: "connect_timeout", Reason: "must not be negative"}
	case c.PoolMax < 0:
		return &ConfigError{Field: "pool_max", Reason: "must not be negative"}
	case c.PoolMaxPerHost < 0:
		return &ConfigError{Field: "pool_max_per_host", Reason: "must not be negative"}
	}

	if (c.ClientCert == "") != (c.ClientKey == "") {
		return &ConfigError{Field: "client_cert", Reason: "client_cert and client_key must be set together"}
	}
	if c.Keystore != "" && c.ClientCert != "" {
		return &ConfigError{Field: "keystore", Reason: "use either keystore or client_cert/client_key, not both"}
	}
	if c.Keystore != "" && c.KeystorePassword == "" {
		return &ConfigError{Field: "keystore_password", Reason: "keystore requires a password"}
	}
	if c.CACert != "" && c.Truststore != "" {
		return &ConfigError{Field: "truststore", Reason: "use either cacert or truststore, not both"}
	}
	if c.Truststore != "" && c.TruststorePassword == "" {
		return &ConfigError{Field: "truststore_password", Reason: "truststore requires a password"}
	}
	return nil
}

func buildTLS(c Config) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12}

	switch {
	case c.CACert != "":
		pemData, err := os.ReadFile(c.CACert)
		if err != nil {
			return nil, &ConfigError{Field: "cacert", Reason: err.Error()}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, &ConfigError{Field: "cacert", Reason: "no PEM certificates found"}
		}
		tc.RootCAs = pool

	case c.Truststore != "":
		blocks, err := readPKCS12(c.Truststore, c.TruststorePassword)
		if err != nil {
			return nil, &ConfigError{Field: "truststore", Reason: err.Error()}
		}
		pool := x509.NewCertPool()
		var n int
		for _, b := range blocks {
			if b.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, &ConfigError{Field: "truststore", Reason: err.Error()}
			}
			pool.AddCert(cert)
			n++
		}
		if n == 0 {
			return nil, &ConfigError{Field: "truststore", Reason: "no certificates found"}
		}
		tc.RootCAs = pool
	}

	switch {
	case c.ClientCert != "":
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, &ConfigError{Field: "client_cert", Reason: err.Error()}
		}
		tc.Certificates = []tls.Certificate{cert}

	case c.Keystore != "":
		blocks, err := readPKCS12(c.Keystore, c.KeystorePassword)
		if err != nil {
			return nil, &ConfigError{Field: "keystore", Reason: err.Error()}
		}
		var certPEM, keyPEM []byte
		for _, b := range blocks {
			switch b.Type {
			case "CERTIFICATE":
				certPEM = append(certPEM, pem.EncodeToMemory(b)...)
			case "PRIVATE KEY":
				keyPEM = append(keyPEM, pem.EncodeToMemory(b)...)
			}
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, &ConfigError{Field: "keystore", Reason: err.Error()}
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

func readPKCS12(path, password string) ([]*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("decode pkcs12: %w", err)
	}
	return blocks, nil
}
