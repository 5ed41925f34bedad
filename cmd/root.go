package cmd

import (
	"os"

	"github.com/rnwolfe/envoluntary/internal/ui"
	"github.com/spf13/cobra"
)

var quiet bool

var rootCmd = &cobra.Command{
	Use:   "envoluntary",
	Short: "Automatic Nix development environments for your shell",
	Long: `envoluntary loads Nix flake development environments into your shell
as you change directories, based on patterns in one central config file.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		ui.SetQuiet(quiet)
		if os.Getenv("ENVOLUNTARY_DEBUG") == "1" {
			ui.SetDebug(true)
		}
	},
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.Err(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress warnings")
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
