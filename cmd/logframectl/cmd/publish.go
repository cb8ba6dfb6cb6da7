package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/delivery"
	"github.com/austindbirch/logframe/internal/logging"
	"github.com/austindbirch/logframe/internal/version"
)

type publisher interface {
	MultiPublish(topic string, body [][]byte) error
}

// publishBatches wraps each batch in an envelope and publishes them to topic
// in one round trip. It returns the batch IDs in publish order.
func publishBatches(ctx context.Context, p publisher, topic string, batches []delivery.Batch) ([]string, error) {
	if len(batches) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(batches))
	bodies := make([][]byte, 0, len(batches))
	for _, b := range batches {
		env := delivery.NewEnvelope(ctx, b)
		body, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("encode envelope: %w", err)
		}
		ids = append(ids, env.BatchID)
		bodies = append(bodies, body)
	}
	if err := p.MultiPublish(topic, bodies); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", topic, err)
	}
	return ids, nil
}

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish [file]",
	Short: "Publish log records to the shipper queue",
	Long: `Group JSON log records into batches and publish each batch as an envelope
to the NSQ topic the worker consumes. Delivery then happens in the worker.

Examples:
  logframectl publish app.ndjson
  logframectl publish --nsqd localhost:4150 --topic log_batches app.ndjson`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cfg.BatchSize <= 0 {
			return fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
		}

		recs, err := loadRecords(cmd, args)
		if err != nil {
			return err
		}

		conf := nsq.NewConfig()
		conf.UserAgent = version.UserAgent()
		producer, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, conf)
		if err != nil {
			return fmt.Errorf("nsq producer: %w", err)
		}
		defer producer.Stop()
		producer.SetLogger(cliLogger(cfg).NSQ(), logging.NSQLevel(cfg.LogLevel))

		ids, err := publishBatches(cmd.Context(), producer, cfg.NSQ.Topic, chunk(recs, cfg.BatchSize))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			printOutput(out, map[string]any{
				"topic":     cfg.NSQ.Topic,
				"records":   len(recs),
				"batch_ids": ids,
			})
			return nil
		}
		fmt.Fprintf(out, "Published %d records in %d batches to %s\n", len(recs), len(ids), cfg.NSQ.Topic)
		for _, id := range ids {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("nsqd", "", "nsqd TCP address (default from config, nsqd:4150)")
	publishCmd.Flags().String("topic", "", "NSQ topic for batch envelopes")
	_ = v.BindPFlag("nsq.nsqd_tcp_addr", publishCmd.Flags().Lookup("nsqd"))
	_ = v.BindPFlag("nsq.topic", publishCmd.Flags().Lookup("topic"))
}
