package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/austindbirch/logframe/internal/config"
	"github.com/austindbirch/logframe/internal/delivery"
	"github.com/austindbirch/logframe/internal/health"
	"github.com/austindbirch/logframe/internal/logging"
	"github.com/austindbirch/logframe/internal/metrics"
	"github.com/austindbirch/logframe/internal/tracing"
	"github.com/austindbirch/logframe/internal/transport"
	"github.com/austindbirch/logframe/internal/version"
)

const serviceName = "logframe-worker"

const (
	minMsgTimeout    = 5 * time.Minute
	msgTimeoutMargin = 30 * time.Second
)

// messageTimeout outlasts the longest delivery a request timeout allows, so
// nsqd never redelivers an envelope that is still being posted. nsqd caps
// the value at its --max-msg-timeout (15m by default).
func messageTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		requestTimeout = transport.DefaultRequestTimeout
	}
	return max(minMsgTimeout, delivery.MaxDuration(requestTimeout)+msgTimeoutMargin)
}

type nsqConnector interface {
	ConnectToNSQLookupd(addr string) error
	ConnectToNSQD(addr string) error
}

// connect uses nsqlookupd discovery unless no lookupd address is set.
func connect(c nsqConnector, cfg config.NSQ) error {
	if cfg.LookupHTTPAddr != "" {
		return c.ConnectToNSQLookupd(cfg.LookupHTTPAddr)
	}
	return c.ConnectToNSQD(cfg.NsqdTCPAddr)
}

type deliverer interface {
	DeliverID(ctx context.Context, batchID string, batch delivery.Batch) bool
}

// shipper handles one queued envelope per call. It always finishes the
// message: the engine owns retries, and a dropped batch is not requeued.
type shipper struct {
	engine deliverer
	logger *logging.Logger
}

func (s *shipper) HandleMessage(m *nsq.Message) error {
	s.handle(context.Background(), m.Body, int(m.Attempts))
	return nil
}

func (s *shipper) handle(ctx context.Context, body []byte, nsqAttempts int) bool {
	env, err := delivery.DecodeEnvelope(body)
	if err != nil {
		s.logger.Plain().WithError(err).WithField("bytes", len(body)).Error("bad envelope payload, discarding")
		metrics.RecordDrop("bad_envelope")
		return false
	}

	ctx = tracing.ExtractHeaders(ctx, env.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "worker.envelope",
		attribute.String("batch_id", env.BatchID),
		attribute.Int("nsq.attempts", nsqAttempts),
	)
	defer span.End()

	if nsqAttempts > 1 {
		// nsqd redelivered after a timeout or a worker crash
		s.logger.WithContext(ctx).WithBatch(env.BatchID).WithField("nsq_attempts", nsqAttempts).
			Warn("envelope redelivered by nsqd")
	}

	ok := s.engine.DeliverID(ctx, env.BatchID, env.Batch())
	span.SetAttributes(attribute.Bool("delivered", ok))
	return ok
}

func consumerCheck(c *nsq.Consumer) health.Check {
	return func(context.Context) error {
		if c.Stats().Connections == 0 {
			return errors.New("no nsqd connections")
		}
		return nil
	}
}

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New(serviceName)
	logger.SetLevel(cfg.LogLevel)
	logging.SetDefaultService(serviceName)

	if err := cfg.Validate(); err != nil {
		logger.Plain().WithError(err).Fatal("invalid configuration")
	}

	shutdownTracing, err := tracing.InitTracing(ctx, serviceName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdownTracing()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	client, err := transport.New(cfg.HTTP)
	if err != nil {
		logger.Plain().WithError(err).Fatal("transport setup failed")
	}

	engine := delivery.NewEngine(client, cfg.IngestURL(),
		delivery.NewHeaders(cfg.API.Key, version.UserAgent()),
		delivery.WithLogger(logger),
	)

	conf := nsq.NewConfig()
	conf.MaxInFlight = cfg.NSQ.MaxInFlight
	conf.MsgTimeout = messageTimeout(cfg.HTTP.RequestTimeout)
	conf.UserAgent = version.UserAgent()
	consumer, err := nsq.NewConsumer(cfg.NSQ.Topic, cfg.NSQ.Channel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}
	consumer.SetLogger(logger.NSQ(), logging.NSQLevel(cfg.LogLevel))
	consumer.AddConcurrentHandlers(&shipper{engine: engine, logger: logger}, cfg.NSQ.Concurrency)

	mux := http.NewServeMux()
	mux.Handle("/healthz", health.HTTPHandler(map[string]health.Check{"nsq": consumerCheck(consumer)}))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	if cfg.NSQ.StatsInterval > 0 && cfg.NSQ.NsqdHTTPAddr != "" {
		mon := newQueueMonitor(cfg.NSQ.NsqdHTTPAddr, cfg.NSQ.Topic, logger)
		go mon.run(monitorCtx, cfg.NSQ.StatsInterval)
	}

	if err := connect(consumer, cfg.NSQ); err != nil {
		logger.Plain().WithError(err).Fatal("nsq connect failed")
	}

	logger.Plain().WithFields(map[string]any{
		"topic":       cfg.NSQ.Topic,
		"channel":     cfg.NSQ.Channel,
		"concurrency": cfg.NSQ.Concurrency,
		"ingest_url":  cfg.IngestURL(),
		"msg_timeout": conf.MsgTimeout.String(),
		"version":     version.Version,
	}).Info("worker service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down worker service")
	// Stop waits for in-flight deliveries to finish before StopChan closes,
	// and only then is the transport torn down.
	consumer.Stop()
	<-consumer.StopChan
	stopMonitor()
	_ = client.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Plain().Info("worker service stopped")
}
