// Package generate manages the generate sub-command.
package generate

import (
	"fmt"
	"os"

	"github.com/ardanlabs/minicode/cmd/minicode/app"
	"github.com/spf13/cobra"
)

// Cmd represents the generate sub-command.
var Cmd = &cobra.Command{
	Use:   "generate <PROMPT>",
	Short: "Run a one-shot generation and print the text",
	Long: `Run a one-shot generation and print the text. Use - to read the prompt from stdin.

Environment Variables:
      MINICODE_MODEL_FILE              (required)               Path to the GGUF model file
      MINICODE_SAMPLING_MAX_TOKENS     (default: 256)           Maximum number of tokens to generate
      MINICODE_SAMPLING_TEMPERATURE    (default: 0.7)           Sampling temperature
      MINICODE_SAMPLING_TOP_P          (default: 0.9)           Top-p sampling cutoff
      MINICODE_SAMPLING_SEED           (default: -1)            Sampling seed, -1 draws a random seed`,
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
