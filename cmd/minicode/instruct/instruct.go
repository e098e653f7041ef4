package instruct

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ardanlabs/minicode/cmd/minicode/app"
	"github.com/ardanlabs/minicode/sdk/minicode"
	"github.com/ardanlabs/minicode/sdk/minicode/prompt"
	"github.com/ardanlabs/minicode/sdk/tools/backups"
)

var build = "develop"

// Run executes the instruct command.
func Run(args []string, file string, write bool, maxInputChars int, backupDir string) error {
	cfg, err := app.Parse(build, false)
	if err != nil {
		if errors.Is(err, app.ErrHelp) {
			return nil
		}
		return err
	}

	if write && file == "" {
		return errors.New("instruct: --write requires --file")
	}

	ctx, stop := signal.NotifyContext(app.SetTraceID(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := app.NewLogger(cfg.Log.Level)

	var content string
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("instruct: read file: %w", err)
		}
		content = string(b)
	}

	if err := prompt.CheckFileSize(content); err != nil {
		return fmt.Errorf("instruct: %s: %w", file, err)
	}

	var opts []prompt.Option
	if maxInputChars > 0 {
		opts = append(opts, prompt.WithMaxInputChars(maxInputChars))
	}

	mc, shutdown, err := app.Start(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	out, err := mc.Instruct(ctx, strings.Join(args, " "), content, opts...)
	switch {
	case errors.Is(err, minicode.ErrTooComplex):
		return fmt.Errorf("instruct: the model refused the task as too complex")

	case errors.Is(err, minicode.ErrSafetyLimit):
		log.Warn(ctx, "instruct", "status", "stopped by safety limit", "chars", len(out))
		return fmt.Errorf("instruct: %w, output discarded", err)

	case err != nil:
		return err
	}

	if !write {
		fmt.Println(out)
		return nil
	}

	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("instruct: stat file: %w", err)
	}

	backup, err := backups.Create(backups.Dir(backupDir), file, []byte(content), time.Now())
	if err != nil {
		return fmt.Errorf("instruct: file left unchanged: %w", err)
	}

	log.Info(ctx, "instruct", "status", "backup written", "backup", backup)

	if err := os.WriteFile(file, []byte(out+"\n"), info.Mode().Perm()); err != nil {
		return fmt.Errorf("instruct: write file: %w", err)
	}

	log.Info(ctx, "instruct", "status", "file written", "file", file, "chars", len(out))

	return nil
}
