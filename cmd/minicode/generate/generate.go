package generate

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/minicode/cmd/minicode/app"
)

var build = "develop"

// Run executes the generate command.
func Run(args []string, showHelp bool) error {
	cfg, err := app.Parse(build, showHelp)
	if err != nil {
		if errors.Is(err, app.ErrHelp) {
			return nil
		}
		return err
	}

	ctx := app.SetTraceID(context.Background())
	log := app.NewLogger(cfg.Log.Level)

	prompt, err := app.ReadPrompt(args, os.Stdin)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	mc, shutdown, err := app.Start(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	s := cfg.Sampling
	text := mc.Generate(prompt, s.MaxTokens, s.Temperature, s.TopP, s.RepeatPenalty, s.Seed)

	fmt.Println(text)

	return nil
}
