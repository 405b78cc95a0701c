package cmdbase

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safing/scanguard/base/info"
)

var printShortVersion bool

// VersionCmd prints the version and build metadata.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and related metadata.",
	Args:  cobra.NoArgs,
	RunE:  Version,
}

func init() {
	VersionCmd.Flags().BoolVar(&printShortVersion, "short", false, "only print the version number")
}

// Version prints the version.
func Version(cmd *cobra.Command, args []string) error {
	if printShortVersion {
		fmt.Fprintln(cmd.OutOrStdout(), info.Version())
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), info.FullVersion())
	return nil
}
