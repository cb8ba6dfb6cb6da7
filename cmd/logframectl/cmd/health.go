package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/health"
)

var workerAddr string

// fetchHealth reads a worker's /healthz report. A 503 still carries a
// status body, so only transport and decode failures are errors.
func fetchHealth(ctx context.Context, baseURL string) (health.Status, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return health.Status{}, 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return health.Status{}, 0, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var st health.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return health.Status{}, resp.StatusCode, fmt.Errorf("decode health status: %w", err)
	}
	return st, resp.StatusCode, nil
}

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of a running worker",
	Long:  `Query a logframe worker's /healthz endpoint and print each check.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, code, err := fetchHealth(cmd.Context(), workerAddr)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			printOutput(out, st)
		} else {
			if st.OK {
				fmt.Fprintln(out, "✓ Worker is healthy")
			} else {
				fmt.Fprintf(out, "✗ Worker is unhealthy (HTTP %d): %s\n", code, st.Message)
			}
			names := make([]string, 0, len(st.Checks))
			for name := range st.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %s: %s\n", name, st.Checks[name])
			}
		}
		if !st.OK {
			return fmt.Errorf("worker unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().StringVar(&workerAddr, "worker", "http://localhost:8083", "worker base URL")
}
