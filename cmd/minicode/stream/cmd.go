// Package stream manages the stream sub-command.
package stream

import (
	"fmt"
	"os"

	"github.com/ardanlabs/minicode/cmd/minicode/app"
	"github.com/spf13/cobra"
)

// Cmd represents the stream sub-command.
var Cmd = &cobra.Command{
	Use:   "stream <PROMPT>",
	Short: "Stream a generation to stdout, Ctrl-C stops it",
	Long: `Stream a generation to stdout as each fragment is produced. Ctrl-C stops the
generation at the next token. Use - to read the prompt from stdin.

Environment Variables:
      MINICODE_MODEL_FILE              (required)               Path to the GGUF model file
      MINICODE_SAMPLING_MAX_TOKENS     (default: 256)           Maximum number of tokens to generate
      MINICODE_SAMPLING_TOP_K          (default: 40)            Top-k sampling cutoff
      MINICODE_GUARD_MAX_DURATION      (default: 12s)           Wall clock budget, negative disables it
      MINICODE_GUARD_MAX_CHARS         (default: 0)             Output character budget, 0 disables it
      MINICODE_GUARD_MAX_REPEATS       (default: 0)             Repeated fragment budget, 0 disables it`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app.SetEnv(cmd)

		if err := Run(args, false); err != nil {
			fmt.Println("\nERROR:", err)
			os.Exit(1)
		}
	},
}

func init() {
	app.AddFlags(Cmd)
}
