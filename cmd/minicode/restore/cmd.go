// Package restore manages the restore sub-command.
package restore

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Cmd represents the restore sub-command.
var Cmd = &cobra.Command{
	Use:   "restore <FILE>",
	Short: "Restore a file from the backup taken before instruct --write",
	Long: `Restore a file from its newest backup, or list the backups with --list.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		list, _ := cmd.Flags().GetBool("list")
		backupDir, _ := cmd.Flags().GetString("backup-dir")

		if err := Run(args[0], backupDir, list); err != nil {
			fmt.Println("\nERROR:", err)
			os.Exit(1)
		}
	},
}

func init() {
	Cmd.Flags().Bool("list", false, "List the backups, newest first")
	Cmd.Flags().String("backup-dir", "", "Backup folder (default: $HOME/.minicode/backups)")
}
