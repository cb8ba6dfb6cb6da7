package cmd

import (
	"github.com/spf13/cobra"
)

// completionCmd represents the completion command
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script",
	Long: `To load completions:

Bash:

  $ source <(logframectl completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ logframectl completion bash > /etc/bash_completion.d/logframectl
  # macOS:
  $ logframectl completion bash > $(brew --prefix)/etc/bash_completion.d/logframectl

Zsh:

  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:

  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ logframectl completion zsh > "${fpath[1]}/_logframectl"

  # You will need to start a new shell for this setup to take effect.

fish:

  $ logframectl completion fish | source

  # To load completions for each session, execute once:
  $ logframectl completion fish > ~/.config/fish/completions/logframectl.fish

PowerShell:

  PS> logframectl completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> logframectl completion powershell > logframectl.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
