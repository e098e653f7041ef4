// Package check manages the check sub-command.
package check

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Cmd represents the check sub-command.
var Cmd = &cobra.Command{
	Use:   "check <MODEL_FILE>",
	Short: "Verify a model file against its sha sidecar",
	Long: `Verify a model file against the sha/<file> sidecar written next to it. The
size is always compared, --sha also hashes the file.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sha, _ := cmd.Flags().GetBool("sha")

		if err := Run(args[0], sha); err != nil {
			fmt.Println("\nERROR:", err)
			os.Exit(1)
		}
	},
}

func init() {
	Cmd.Flags().Bool("sha", false, "Hash the file and compare the sha256")
}
