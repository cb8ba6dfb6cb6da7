// Package config loads shipper settings from defaults, an optional YAML file
// and LOGFRAME_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/austindbirch/logframe/internal/transport"
)

// IngestPath is appended to the API endpoint for every batch POST.
const IngestPath = "/frames"

const EnvPrefix = "LOGFRAME"

var ErrMissingAPIKey = errors.New("api.key is required")

type API struct {
	Key      string // sent as Basic credentials
	Endpoint string // scheme://host[:port], IngestPath is appended
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	NsqdHTTPAddr   string // e.g. nsqd:4151, polled for backlog stats
	LookupHTTPAddr string // e.g. nsqlookupd:4161, empty to connect to nsqd directly
	Topic          string // batch envelopes
	Channel        string // shipper channel
	MaxInFlight    int
	Concurrency    int           // handler goroutines, each running one delivery at a time
	StatsInterval  time.Duration // 0 disables backlog polling
}

type FakeReceiver struct {
	Port            string
	APIKey          string // expected key, empty accepts any
	FailFirstN      int    // number of requests to fail initially
	FailStatus      int    // status returned while failing
	ResponseDelayMS int
}

type Config struct {
	AppName      string
	HTTPPort     string // worker health and metrics
	LogLevel     string
	BatchSize    int // records per batch when the CLI chunks input
	API          API
	HTTP         transport.Config
	NSQ          NSQ
	FakeReceiver FakeReceiver
}

// SetDefaults registers every key with its default so env vars are picked up
// by viper even when no config file mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "logframe")
	v.SetDefault("http_port", ":8083")
	v.SetDefault("log_level", "info")
	v.SetDefault("batch_size", 100)

	v.SetDefault("api.key", "")
	v.SetDefault("api.endpoint", "https://in.logframe.io")

	v.SetDefault("http.request_timeout", transport.DefaultRequestTimeout)
	v.SetDefault("http.socket_timeout", transport.DefaultSocketTimeout)
	v.SetDefault("http.connect_timeout", transport.DefaultConnectTimeout)
	v.SetDefault("http.pool_max", transport.DefaultPoolMax)
	v.SetDefault("http.pool_max_per_host", transport.DefaultPoolMaxPerHost)
	v.SetDefault("http.cacert", "")
	v.SetDefault("http.client_cert", "")
	v.SetDefault("http.client_key", "")
	v.SetDefault("http.keystore", "")
	v.SetDefault("http.keystore_password", "")
	v.SetDefault("http.truststore", "")
	v.SetDefault("http.truststore_password", "")
	v.SetDefault("http.proxy", "")

	v.SetDefault("nsq.nsqd_tcp_addr", "nsqd:4150")
	v.SetDefault("nsq.nsqd_http_addr", "nsqd:4151")
	v.SetDefault("nsq.lookup_http_addr", "nsqlookupd:4161")
	v.SetDefault("nsq.topic", "log_batches")
	v.SetDefault("nsq.channel", "shippers")
	v.SetDefault("nsq.max_in_flight", 8)
	v.SetDefault("nsq.concurrency", 4)
	v.SetDefault("nsq.stats_interval", 15*time.Second)

	v.SetDefault("fake_receiver.port", ":8081")
	v.SetDefault("fake_receiver.api_key", "")
	v.SetDefault("fake_receiver.fail_first_n", 0)
	v.SetDefault("fake_receiver.fail_status", 503)
	v.SetDefault("fake_receiver.response_delay_ms", 0)
}

// NewViper returns a viper instance wired for LOGFRAME_ env vars with all
// defaults set. A nested key such as http.request_timeout is read from
// LOGFRAME_HTTP_REQUEST_TIMEOUT. A variable set to the empty string counts as
// set, so LOGFRAME_NSQ_LOOKUP_HTTP_ADDR= turns lookupd discovery off.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads a Config out of v. It does not validate; call Validate before
// anything needs the API settings.
func Load(v *viper.Viper) Config {
	return Config{
		AppName:   v.GetString("app_name"),
		HTTPPort:  v.GetString("http_port"),
		LogLevel:  v.GetString("log_level"),
		BatchSize: v.GetInt("batch_size"),
		API: API{
			Key:      v.GetString("api.key"),
			Endpoint: v.GetString("api.endpoint"),
		},
		HTTP: transport.Config{
			RequestTimeout:     v.GetDuration("http.request_timeout"),
			SocketTimeout:      v.GetDuration("http.socket_timeout"),
			ConnectTimeout:     v.GetDuration("http.connect_timeout"),
			PoolMax:            v.GetInt("http.pool_max"),
			PoolMaxPerHost:     v.GetInt("http.pool_max_per_host"),
			CACert:             v.GetString("http.cacert"),
			ClientCert:         v.GetString("http.client_cert"),
			ClientKey:          v.GetString("http.client_key"),
			Keystore:           v.GetString("http.keystore"),
			KeystorePassword:   v.GetString("http.keystore_password"),
			Truststore:         v.GetString("http.truststore"),
			TruststorePassword: v.GetString("http.truststore_password"),
			Proxy:              v.GetString("http.proxy"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    v.GetString("nsq.nsqd_tcp_addr"),
			NsqdHTTPAddr:   v.GetString("nsq.nsqd_http_addr"),
			LookupHTTPAddr: v.GetString("nsq.lookup_http_addr"),
			Topic:          v.GetString("nsq.topic"),
			Channel:        v.GetString("nsq.channel"),
			MaxInFlight:    v.GetInt("nsq.max_in_flight"),
			Concurrency:    v.GetInt("nsq.concurrency"),
			StatsInterval:  v.GetDuration("nsq.stats_interval"),
		},
		FakeReceiver: FakeReceiver{
			Port:            v.GetString("fake_receiver.port"),
			APIKey:          v.GetString("fake_receiver.api_key"),
			FailFirstN:      v.GetInt("fake_receiver.fail_first_n"),
			FailStatus:      v.GetInt("fake_receiver.fail_status"),
			ResponseDelayMS: v.GetInt("fake_receiver.response_delay_ms"),
		},
	}
}

// FromEnv loads configuration from the environment only.
func FromEnv() Config {
	return Load(NewViper())
}

// FromFile loads configuration from a YAML file, with env vars taking
// precedence over file values.
func FromFile(path string) (Config, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Load(v), nil
}

// Validate checks the settings a delivery needs.
func (c Config) Validate() error {
	if c.API.Key == "" {
		return ErrMissingAPIKey
	}
	u, err := url.Parse(c.API.Endpoint)
	if err != nil {
		return fmt.Errorf("api.endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.endpoint: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api.endpoint: missing host")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	return c.HTTP.Validate()
}

// IngestURL is the full URL batches are posted to.
func (c Config) IngestURL() string {
	return strings.TrimRight(c.API.Endpoint, "/") + IngestPath
}

// ResponseDelay is the fake receiver's simulated latency.
func (f FakeReceiver) ResponseDelay() time.Duration {
	return time.Duration(f.ResponseDelayMS) * time.Millisecond
}
