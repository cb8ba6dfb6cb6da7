package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/delivery"
	"github.com/austindbirch/logframe/internal/transport"
	"github.com/austindbirch/logframe/internal/version"
)

type pingResult struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Latency    string `json:"latency"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
}

// ping posts an empty batch once, without retries, to check credentials,
// TLS material and reachability.
func ping(ctx context.Context, t delivery.Transport, url string, headers delivery.Headers) pingResult {
	start := time.Now()
	resp, err := t.Post(ctx, url, []byte("[]"), headers.Map())
	res := pingResult{URL: url, Latency: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = delivery.KindOf(err).String()
		return res
	}
	res.StatusCode = resp.StatusCode
	return res
}

func (r pingResult) ok() bool {
	return r.Error == "" && r.StatusCode >= 200 && r.StatusCode <= 299
}

func (r pingResult) print(out io.Writer) {
	switch {
	case r.Error != "":
		fmt.Fprintf(out, "✗ %s unreachable (%s): %s\n", r.URL, r.ErrorKind, r.Error)
	case r.ok():
		fmt.Fprintf(out, "Pong! %s answered %d in %s\n", r.URL, r.StatusCode, r.Latency)
	default:
		fmt.Fprintf(out, "✗ %s answered %d in %s\n", r.URL, r.StatusCode, r.Latency)
	}
}

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the ingestion API accepts our credentials",
	Long:  `Send an empty batch to the ingestion API once and report the response.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}

		client, err := transport.New(cfg.HTTP)
		if err != nil {
			return err
		}
		defer client.Close()

		res := ping(cmd.Context(), client, cfg.IngestURL(), delivery.NewHeaders(cfg.API.Key, version.UserAgent()))
		if outputJSON {
			printOutput(cmd.OutOrStdout(), res)
		} else {
			res.print(cmd.OutOrStdout())
		}
		if !res.ok() {
			return fmt.Errorf("ping failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
