package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/austindbirch/logframe/internal/logging"
	"github.com/austindbirch/logframe/internal/metrics"
)

// nsqStats is the subset of nsqd's /stats response the monitor reads.
type nsqStats struct {
	Topics []struct {
		TopicName string `json:"topic_name"`
		Channels  []struct {
			ChannelName   string `json:"channel_name"`
			Depth         int64  `json:"depth"`
			InFlightCount int64  `json:"in_flight_count"`
		} `json:"channels"`
	} `json:"topics"`
}

// queueMonitor polls nsqd for the backlog of the envelope topic and exports
// it as gauges.
type queueMonitor struct {
	statsURL string
	topic    string
	client   *http.Client
	logger   *logging.Logger
}

func newQueueMonitor(nsqdHTTPAddr, topic string, logger *logging.Logger) *queueMonitor {
	q := url.Values{"format": {"json"}, "topic": {topic}}
	return &queueMonitor{
		statsURL: fmt.Sprintf("http://%s/stats?%s", nsqdHTTPAddr, q.Encode()),
		topic:    topic,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

func (m *queueMonitor) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.poll(ctx); err != nil && ctx.Err() == nil {
			m.logger.Plain().WithError(err).Warn("Failed to poll NSQ stats")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *queueMonitor) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.statsURL, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nsqd stats: unexpected status %d", resp.StatusCode)
	}

	var stats nsqStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode nsqd stats: %w", err)
	}

	for _, t := range stats.Topics {
		if t.TopicName != m.topic {
			continue
		}
		for _, ch := range t.Channels {
			metrics.UpdateQueueStats(t.TopicName, ch.ChannelName, ch.Depth, ch.InFlightCount)
		}
	}
	return nil
}
