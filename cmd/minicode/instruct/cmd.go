// Package instruct manages the instruct sub-command.
package instruct

import (
	"fmt"
	"os"

	"github.com/ardanlabs/minicode/cmd/minicode/app"
	"github.com/spf13/cobra"
)

// Cmd represents the instruct sub-command.
var Cmd = &cobra.Command{
	Use:   "instruct <INSTRUCTION>",
	Short: "Rewrite a file following an instruction",
	Long: `Rewrite a file following an instruction and print the new content. With
--write the file is replaced after a copy is saved to the backup folder, use
the restore command to bring it back. Without --file the model writes a new
file. Files over 15000 characters or 600 lines are refused.

Environment Variables:
      MINICODE_MODEL_FILE              (required)               Path to the GGUF model file
      MINICODE_GUARD_MAX_DURATION      (default: 12s)           Wall clock budget, negative disables it
      MINICODE_GUARD_MAX_CHARS         (default: 0)             Output character budget, 0 disables it
      MINICODE_GUARD_MAX_REPEATS       (default: 0)             Repeated fragment budget, 0 disables it`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app.SetEnv(cmd)

		file, _ := cmd.Flags().GetString("file")
		write, _ := cmd.Flags().GetBool("write")
		maxChars, _ := cmd.Flags().GetInt("max-input-chars")
		backupDir, _ := cmd.Flags().GetString("backup-dir")

		if err := Run(args, file, write, maxChars, backupDir); err != nil {
			fmt.Println("\nERROR:", err)
			os.Exit(1)
		}
	},
}

func init() {
	app.AddFlags(Cmd)
	Cmd.Flags().StringP("file", "f", "", "File whose content is rewritten")
	Cmd.Flags().BoolP("write", "w", false, "Replace the file with the result")
	Cmd.Flags().Int("max-input-chars", 0, "Maximum characters of instruction and content combined")
	Cmd.Flags().String("backup-dir", "", "Backup folder (default: $HOME/.minicode/backups)")
}
