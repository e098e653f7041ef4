// This program runs a local code writing model from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/ardanlabs/minicode/cmd/minicode/check"
	"github.com/ardanlabs/minicode/cmd/minicode/generate"
	"github.com/ardanlabs/minicode/cmd/minicode/instruct"
	"github.com/ardanlabs/minicode/cmd/minicode/restore"
	"github.com/ardanlabs/minicode/cmd/minicode/stream"
	"github.com/ardanlabs/minicode/sdk/minicode"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "minicode",
	Short: "Offline code writing with a local model",
	Long: `Offline code writing with a local GGUF model run by llama.cpp through yzma.

Environment Variables:
      MINICODE_LIB_PATH                (default: $HOME/.minicode/libraries)  Folder holding the llama.cpp libraries
      MINICODE_LLAMA_LOG               (default: 1)                          llama.cpp logging: 1 silent, 2 normal
      MINICODE_LOG_LEVEL               (default: info)                       Log level: debug, info, warn, error
      MINICODE_MODEL_FILE              (required)                            Path to the GGUF model file
      MINICODE_MODEL_CONTEXT_CAPACITY  (default: 2048)                       Tokens the model attends to per generation
      MINICODE_MODEL_BATCH_CAPACITY    (default: 512)                        Prompt tokens decoded per call
      MINICODE_MODEL_THREADS           (default: llama.cpp)                  Number of decode threads`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Version = minicode.Version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(generate.Cmd)
	rootCmd.AddCommand(stream.Cmd)
	rootCmd.AddCommand(instruct.Cmd)
	rootCmd.AddCommand(check.Cmd)
	rootCmd.AddCommand(restore.Cmd)
}
