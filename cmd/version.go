package cmd

import (
	"fmt"

	"github.com/rnwolfe/envoluntary/internal/version"
	"github.com/spf13/cobra"
)

var (
	versionShort bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print envoluntary version",
	Run:   runVersion,
}

func runVersion(_ *cobra.Command, _ []string) {
	if versionShort {
		fmt.Println(version.Short())
	} else {
		fmt.Printf("envoluntary %s\n", version.Full())
	}
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
}
