package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Cmd can be added to other commands to provide a version subcommand with
// the version of addrspace the binary was built from.
var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Print version number of addrspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		short, err := cmd.Flags().GetBool("short")
		if err != nil {
			return err
		}
		if short {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		}
		FprintVersion(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	Cmd.Flags().Bool("short", false, "Print the version number only")
}
