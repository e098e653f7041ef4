package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ardanlabs/minicode/cmd/minicode/app"
	"github.com/ardanlabs/minicode/foundation/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

func Test_BuildEnvVars(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	app.AddFlags(cmd)

	if got := app.BuildEnvVars(cmd); len(got) != 0 {
		t.Fatalf("no flags set should produce no env vars, got %v", got)
	}

	flags := map[string]string{
		"model":       "/models/tiny.gguf",
		"temperature": "0",
		"seed":        "-1",
		"top-k":       "0",
	}

	for k, v := range flags {
		if err := cmd.Flags().Set(k, v); err != nil {
			t.Fatalf("set %s: %s", k, err)
		}
	}

	exp := [][2]string{
		{"MINICODE_MODEL_FILE", "/models/tiny.gguf"},
		{"MINICODE_SAMPLING_TEMPERATURE", "0"},
		{"MINICODE_SAMPLING_TOP_K", "0"},
		{"MINICODE_SAMPLING_SEED", "-1"},
	}

	if diff := cmp.Diff(exp, app.BuildEnvVars(cmd)); diff != "" {
		t.Fatalf("env vars mismatch (-want +got):\n%s", diff)
	}
}

func Test_ReadPrompt(t *testing.T) {
	got, err := app.ReadPrompt([]string{"write", "a", "loop"}, strings.NewReader("ignored"))
	if err != nil {
		t.Fatalf("read prompt: %s", err)
	}

	if got != "write a loop" {
		t.Fatalf("got %q", got)
	}

	got, err = app.ReadPrompt([]string{"-"}, strings.NewReader("from stdin"))
	if err != nil {
		t.Fatalf("read prompt: %s", err)
	}

	if got != "from stdin" {
		t.Fatalf("got %q", got)
	}
}

func Test_TraceID(t *testing.T) {
	if got := app.GetTraceID(context.Background()); got != "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("got %q without a trace id", got)
	}

	ctx := app.SetTraceID(context.Background())

	id := app.GetTraceID(ctx)
	if len(id) != 36 || id == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("unexpected trace id %q", id)
	}
}

func Test_SDKLogger(t *testing.T) {
	var buf bytes.Buffer

	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := app.SDKLogger(logger.NewWithHandler(h))

	ctx := context.Background()

	log(ctx, "load", "status", "loaded", "model-file", "tiny.gguf")
	log(ctx, "generate", "status", "repeat-penalty-not-applied")
	log(ctx, "generate", "status", "decode-failed", "ERROR", errors.New("boom"))
	log(ctx, "load", "status", "replacing")

	var got []string
	for line := range strings.Lines(buf.String()) {
		var entry struct {
			Level string `json:"level"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decoding %q: %s", line, err)
		}
		got = append(got, entry.Level)
	}

	if diff := cmp.Diff([]string{"INFO", "WARN", "ERROR", "DEBUG"}, got); diff != "" {
		t.Fatalf("levels mismatch (-want +got):\n%s", diff)
	}
}
