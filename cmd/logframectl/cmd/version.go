package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/austindbirch/logframe/internal/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information for logframectl and the User-Agent it sends.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if outputJSON {
			info := version.Info()
			info["userAgent"] = version.UserAgent()
			printOutput(out, info)
			return
		}
		fmt.Fprintf(out, "logframectl version %s\n", version.Version)
		fmt.Fprintf(out, "Git commit: %s\n", version.GitCommit)
		fmt.Fprintf(out, "Built: %s\n", version.BuildTime)
		fmt.Fprintf(out, "User-Agent: %s\n", version.UserAgent())
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
