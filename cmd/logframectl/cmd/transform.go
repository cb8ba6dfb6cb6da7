package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/transform"
)

// transformCmd represents the transform command
var transformCmd = &cobra.Command{
	Use:   "transform [file]",
	Short: "Print the wire records a set of log records turns into",
	Long: `Reshape JSON log records into the ingestion wire format and print them,
one per line, without sending anything. Use --json for an indented array.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := loadRecords(cmd, args)
		if err != nil {
			return err
		}

		wire := transform.Batch(recs)
		out := cmd.OutOrStdout()
		if outputJSON {
			printOutput(out, wire)
			return nil
		}

		enc := json.NewEncoder(out)
		for i, w := range wire {
			if err := enc.Encode(w); err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transformCmd)
}
