package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/minicode/cmd/minicode/app"
	"github.com/ardanlabs/minicode/sdk/minicode/session"
)

var build = "develop"

const reasonInterrupted = "interrupted"

// Run executes the stream command.
func Run(args []string, showHelp bool) error {
	cfg, err := app.Parse(build, showHelp)
	if err != nil {
		if errors.Is(err, app.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(app.SetTraceID(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := app.NewLogger(cfg.Log.Level)

	prompt, err := app.ReadPrompt(args, os.Stdin)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	mc, shutdown, err := app.Start(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	cb := session.NewStreamCallback(func(fragment string) {
		fmt.Print(fragment)
	})

	guard := session.NewGuard(cb, session.GuardConfig{
		MaxDuration: cfg.Guard.MaxDuration,
		MaxChars:    cfg.Guard.MaxChars,
		MaxRepeats:  cfg.Guard.MaxRepeats,
	})
	defer guard.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			cb.Cancel(reasonInterrupted)
		case <-done:
		}
	}()

	start := time.Now()

	s := cfg.Sampling
	mc.GenerateStreaming(prompt, s.MaxTokens, s.Temperature, s.TopK, s.TopP, s.RepeatPenalty, s.RepeatLastN, s.Seed, guard)

	fmt.Println()

	reason := cb.Reason()
	if reason == "" {
		reason = guard.Reason()
	}

	log.Info(ctx, "stream", "status", "completed", "cancel-reason", reason, "duration", time.Since(start).String())

	return nil
}
