package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/config"
	"github.com/austindbirch/logframe/internal/logging"
)

var (
	cfgFile    string
	outputJSON bool
	prettyJSON bool

	// v holds flags, the config file and LOGFRAME_ env vars for every command.
	v = config.NewViper()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "logframectl",
	Short: "logframe CLI - ship structured logs to the ingestion API",
	Long: `logframectl is a command line tool for the logframe shipper.

You can use it to send NDJSON log records straight to the ingestion API,
preview the wire format they are reshaped into, publish batches to the
shipper queue, and check the health of a running worker.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext is Execute with a context that commands observe for cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.logframectl.yaml)")
	rootCmd.PersistentFlags().String("api-key", "", "ingestion API key (env LOGFRAME_API_KEY)")
	rootCmd.PersistentFlags().String("endpoint", "", "ingestion API endpoint, e.g. https://in.logframe.io")
	rootCmd.PersistentFlags().String("log-level", "", "log level for delivery logs on stderr")
	rootCmd.PersistentFlags().Int("batch-size", 100, "records per batch for send and publish")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&prettyJSON, "pretty", false, "use jq for pretty JSON formatting (requires jq)")

	// Bind flags to viper
	_ = v.BindPFlag("api.key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = v.BindPFlag("api.endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("batch_size", rootCmd.PersistentFlags().Lookup("batch-size"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".logframectl")
	}

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	} else if cfgFile != "" {
		cobra.CheckErr(fmt.Errorf("read config %s: %w", cfgFile, err))
	}
}

func loadConfig() config.Config {
	return config.Load(v)
}

// cliLogger sends engine logs to stderr so stdout stays parseable.
func cliLogger(cfg config.Config) *logging.Logger {
	l := logging.New("logframectl")
	l.SetOutput(os.Stderr)
	l.SetLevel(cfg.LogLevel)
	return l
}

// checkJQAvailable checks if jq is available in PATH
func checkJQAvailable() bool {
	_, err := exec.LookPath("jq")
	return err == nil
}

// formatWithJQ formats JSON using jq for pretty printing
func formatWithJQ(jsonData []byte) (string, error) {
	if !checkJQAvailable() {
		return "", fmt.Errorf("jq not found in PATH")
	}

	cmd := exec.Command("jq", ".")
	cmd.Stdin = bytes.NewReader(jsonData)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("jq formatting failed: %s", stderr.String())
	}

	return out.String(), nil
}

// printOutput writes v to w as JSON, pretty printed through jq when asked for.
func printOutput(w io.Writer, v any) {
	var jsonData []byte
	var err error
	if prettyJSON {
		// Compact JSON if we're going to format with jq
		jsonData, err = json.Marshal(v)
	} else {
		jsonData, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling to JSON: %v\n", err)
		return
	}

	if prettyJSON {
		formatted, jqErr := formatWithJQ(jsonData)
		if jqErr == nil {
			fmt.Fprint(w, formatted)
			return
		}
		// Fall back to standard pretty printing if jq fails
		fmt.Fprintf(os.Stderr, "Warning: %v, falling back to standard formatting\n", jqErr)
		jsonData, _ = json.MarshalIndent(v, "", "  ")
	}
	fmt.Fprintln(w, string(jsonData))
}
