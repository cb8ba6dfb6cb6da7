package cmd

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/delivery"
	"github.com/austindbirch/logframe/internal/transport"
	"github.com/austindbirch/logframe/internal/version"
)

var sendParallel int

type deliverer interface {
	Deliver(ctx context.Context, batch delivery.Batch) bool
}

type sendResult struct {
	Batches   int    `json:"batches"`
	Records   int    `json:"records"`
	Delivered int    `json:"delivered"`
	Dropped   int    `json:"dropped"`
	Elapsed   string `json:"elapsed"`
}

// sendBatches delivers every batch with at most parallel deliveries in
// flight. Batches may arrive out of order when parallel > 1.
func sendBatches(ctx context.Context, eng deliverer, batches []delivery.Batch, parallel int) sendResult {
	if parallel < 1 {
		parallel = 1
	}
	start := time.Now()
	var delivered, dropped atomic.Int64
	var records int

	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	for _, b := range batches {
		records += len(b)
		sem <- struct{}{}
		wg.Add(1)
		go func(b delivery.Batch) {
			defer func() { <-sem; wg.Done() }()
			if eng.Deliver(ctx, b) {
				delivered.Add(1)
			} else {
				dropped.Add(1)
			}
		}(b)
	}
	wg.Wait()

	return sendResult{
		Batches:   len(batches),
		Records:   records,
		Delivered: int(delivered.Load()),
		Dropped:   int(dropped.Load()),
		Elapsed:   time.Since(start).Round(time.Millisecond).String(),
	}
}

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [file]",
	Short: "Send NDJSON log records to the ingestion API",
	Long: `Read JSON log records from a file (or stdin), group them into batches and
deliver each batch to the ingestion API with retries.

Examples:
  logframectl send app.ndjson
  tail -n 1000 app.ndjson | logframectl send --batch-size 200
  logframectl send --parallel 4 --endpoint http://localhost:8081 events.ndjson`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}

		recs, err := loadRecords(cmd, args)
		if err != nil {
			return err
		}

		client, err := transport.New(cfg.HTTP)
		if err != nil {
			return err
		}
		defer client.Close()

		engine := delivery.NewEngine(client, cfg.IngestURL(),
			delivery.NewHeaders(cfg.API.Key, version.UserAgent()),
			delivery.WithLogger(cliLogger(cfg)),
		)

		res := sendBatches(cmd.Context(), engine, chunk(recs, cfg.BatchSize), sendParallel)

		out := cmd.OutOrStdout()
		if outputJSON {
			printOutput(out, res)
		} else {
			fmt.Fprintf(out, "Sent %d records in %d batches (%s)\n", res.Records, res.Batches, res.Elapsed)
			fmt.Fprintf(out, "  Delivered: %d\n", res.Delivered)
			fmt.Fprintf(out, "  Dropped:   %d\n", res.Dropped)
		}

		if res.Dropped > 0 {
			return fmt.Errorf("%d of %d batches dropped", res.Dropped, res.Batches)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().IntVar(&sendParallel, "parallel", 1, "batches delivered concurrently")
}
