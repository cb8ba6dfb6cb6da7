package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/config"
	"github.com/austindbirch/logframe/internal/transport"
)

// maskKey keeps the last four characters of an API key for display.
func maskKey(k string) string {
	if k == "" {
		return ""
	}
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func configView(cfg config.Config) map[string]any {
	return map[string]any{
		"api_key":         maskKey(cfg.API.Key),
		"ingest_url":      cfg.IngestURL(),
		"batch_size":      cfg.BatchSize,
		"log_level":       cfg.LogLevel,
		"request_timeout": cfg.HTTP.RequestTimeout.String(),
		"connect_timeout": cfg.HTTP.ConnectTimeout.String(),
		"socket_timeout":  cfg.HTTP.SocketTimeout.String(),
		"pool_max":        cfg.HTTP.PoolMax,
		"proxy":           cfg.HTTP.Proxy,
		"nsqd":            cfg.NSQ.NsqdTCPAddr,
		"topic":           cfg.NSQ.Topic,
	}
}

// writeDefaultConfig writes every setting with its default value to path.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	w := config.NewViper()
	// Durations are written as strings so the file stays readable.
	w.Set("http.request_timeout", transport.DefaultRequestTimeout.String())
	w.Set("http.socket_timeout", transport.DefaultSocketTimeout.String())
	w.Set("http.connect_timeout", transport.DefaultConnectTimeout.String())
	w.Set("nsq.stats_interval", w.GetDuration("nsq.stats_interval").String())

	if err := w.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	return nil
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".logframectl.yaml"), nil
}

// checkConfig prints one line per check and returns the first failure.
func checkConfig(out io.Writer, cfg config.Config) error {
	var errs []error

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "  ❌ Settings: %v\n", err)
		errs = append(errs, err)
	} else {
		fmt.Fprintf(out, "  ✅ Settings: ingest URL %s\n", cfg.IngestURL())
	}

	if c, err := transport.New(cfg.HTTP); err != nil {
		fmt.Fprintf(out, "  ❌ Transport: %v\n", err)
		errs = append(errs, err)
	} else {
		_ = c.Close()
		fmt.Fprintf(out, "  ✅ Transport: TLS material and proxy OK\n")
	}

	if checkJQAvailable() {
		fmt.Fprintf(out, "  ✅ jq: available\n")
	} else {
		fmt.Fprintf(out, "  ⚠️  jq: not found in PATH (--pretty falls back to standard formatting)\n")
	}

	return errors.Join(errs...)
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage logframectl configuration",
	Long:  `Manage logframectl configuration settings.`,
}

// configViewCmd represents the config view command
var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	Long:  `Display the effective configuration after flags, env vars and the config file.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		out := cmd.OutOrStdout()
		if outputJSON {
			printOutput(out, configView(cfg))
			return
		}

		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  API key: %s\n", maskKey(cfg.API.Key))
		fmt.Fprintf(out, "  Ingest URL: %s\n", cfg.IngestURL())
		fmt.Fprintf(out, "  Batch size: %d\n", cfg.BatchSize)
		fmt.Fprintf(out, "  Request timeout: %s\n", cfg.HTTP.RequestTimeout)
		fmt.Fprintf(out, "  NSQ: %s topic=%s\n", cfg.NSQ.NsqdTCPAddr, cfg.NSQ.Topic)
		if v.ConfigFileUsed() != "" {
			fmt.Fprintf(out, "  Config file: %s\n", v.ConfigFileUsed())
		} else {
			fmt.Fprintln(out, "  Config file: none (using defaults)")
		}
	},
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a configuration file holding every setting at its default value.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			p, err := defaultConfigPath()
			if err != nil {
				return err
			}
			path = p
		}
		force, _ := cmd.Flags().GetBool("force")

		if err := writeDefaultConfig(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created: %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "Set api.key (or LOGFRAME_API_KEY) before sending.")
		return nil
	},
}

// configCheckCmd represents the config check command
var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and dependencies",
	Long:  `Validate the configuration, load TLS material, and check optional tools like jq.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration check:")
		if v.ConfigFileUsed() != "" {
			fmt.Fprintf(out, "  ✅ Config file: %s\n", v.ConfigFileUsed())
		} else {
			fmt.Fprintf(out, "  ⚠️  Config file: not found (using defaults)\n")
		}
		return checkConfig(out, loadConfig())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)

	// Flags for init command
	configInitCmd.Flags().Bool("force", false, "overwrite existing config file")
	configInitCmd.Flags().String("path", "", "where to write the file (default $HOME/.logframectl.yaml)")
}
