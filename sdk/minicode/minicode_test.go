package minicode_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/ardanlabs/minicode/sdk/minicode"
	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/ardanlabs/minicode/sdk/minicode/backend/backendtest"
	"github.com/ardanlabs/minicode/sdk/minicode/prompt"
	"github.com/ardanlabs/minicode/sdk/minicode/session"
	"github.com/google/go-cmp/cmp"
)

const (
	tokPackage backend.Token = iota + 1
	tokMain
	tokNewline
	tokTooComplex
	tokLoop
)

var pieces = map[backend.Token]string{
	tokPackage:    "package",
	tokMain:       " main",
	tokNewline:    "\n",
	tokTooComplex: "ERROR_TOO_COMPLEX",
	tokLoop:       "for {}",
}

func newMinicode(t *testing.T, script []backend.Token, cfg minicode.Config) (*minicode.Minicode, *backendtest.Backend) {
	t.Helper()

	b := backendtest.New(backendtest.Config{Pieces: pieces, Script: script})

	cfg.IgnoreIntegrityCheck = true

	mc, err := minicode.New(cfg, minicode.WithBackend(b))
	if err != nil {
		t.Fatalf("new: %s", err)
	}

	t.Cleanup(func() {
		mc.UnloadModel()

		if st := b.Stats(); st.LiveModels != 0 || st.LiveContexts != 0 || st.LiveSamplers != 0 {
			t.Errorf("resources leaked: %+v", st)
		}
	})

	return mc, b
}

func Test_NewRequiresInit(t *testing.T) {
	if _, err := minicode.New(minicode.Config{}); err == nil {
		t.Fatal("expected an error without Init or a backend")
	}
}

func Test_Defaults(t *testing.T) {
	mc, _ := newMinicode(t, nil, minicode.Config{})

	cfg := mc.Config()
	if cfg.ContextCapacity != 2048 || cfg.BatchCapacity != 512 || cfg.PieceCacheSize != 4096 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func Test_Lifecycle(t *testing.T) {
	mc, b := newMinicode(t, []backend.Token{tokPackage, tokMain}, minicode.Config{})

	if mc.IsLoaded() {
		t.Fatal("should start unloaded")
	}

	if got := mc.Generate("hello", 10, 0.7, 0.9, 1.0, 42); got != "" {
		t.Fatalf("not loaded should return empty, got %q", got)
	}

	if !mc.LoadModel("tiny.gguf") || !mc.IsLoaded() {
		t.Fatal("load should succeed")
	}

	if got := mc.Generate("hello", 10, 0.7, 0.9, 1.0, 42); got != "package main" {
		t.Fatalf("got %q", got)
	}

	b.FailLoad(errors.New("corrupt"))

	if mc.LoadModel("other.gguf") {
		t.Fatal("load should fail")
	}

	if mc.IsLoaded() {
		t.Fatal("a failed load should leave nothing loaded")
	}

	mc.UnloadModel()
	mc.UnloadModel()
}

func Test_GenerateStreaming(t *testing.T) {
	mc, _ := newMinicode(t, []backend.Token{tokPackage, tokMain, backendtest.EOG, tokLoop}, minicode.Config{})

	if !mc.LoadModel("tiny.gguf") {
		t.Fatal("load should succeed")
	}

	var got []string
	var streams []int

	cb := session.NewStreamCallback(func(s string) {
		got = append(got, s)
		streams = append(streams, mc.ActiveStreams())
	})

	mc.GenerateStreaming("hello", 10, 0.7, 40, 0.9, 1.0, 64, 42, cb)

	if diff := cmp.Diff([]string{"package", " main"}, got); diff != "" {
		t.Fatalf("fragments mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int{1, 1}, streams); diff != "" {
		t.Fatalf("active streams mismatch (-want +got):\n%s", diff)
	}

	if mc.ActiveStreams() != 0 {
		t.Fatalf("got %d active streams after the call", mc.ActiveStreams())
	}
}

func Test_PanicRecovered(t *testing.T) {
	mc, _ := newMinicode(t, []backend.Token{tokPackage, tokMain}, minicode.Config{})

	if !mc.LoadModel("tiny.gguf") {
		t.Fatal("load should succeed")
	}

	cb := session.Funcs{
		Token: func(string) { panic("receiver failed") },
	}

	mc.GenerateStreaming("hello", 10, 0.7, 40, 0.9, 1.0, 64, 42, cb)

	if got := mc.Generate("hello", 10, 0.7, 0.9, 1.0, 42); got != "package main" {
		t.Fatalf("the session should still work after a panic, got %q", got)
	}

	if mc.ActiveStreams() != 0 {
		t.Fatalf("got %d active streams", mc.ActiveStreams())
	}
}

func Test_Instruct(t *testing.T) {
	tests := []struct {
		name   string
		script []backend.Token
		guard  session.GuardConfig
		exp    string
		err    error
	}{
		{
			name:   "code",
			script: []backend.Token{tokNewline, tokPackage, tokMain, tokNewline},
			exp:    "package main",
		},
		{
			name:   "too-complex",
			script: []backend.Token{tokTooComplex, tokNewline},
			err:    minicode.ErrTooComplex,
		},
		{
			name:   "safety-limit",
			script: []backend.Token{tokLoop, tokLoop, tokLoop, tokLoop, tokLoop},
			guard:  session.GuardConfig{MaxRepeats: 2},
			exp:    "for {}for {}for {}",
			err:    minicode.ErrSafetyLimit,
		},
		{
			name:   "budget-on-last-token",
			script: slices.Repeat([]backend.Token{tokPackage}, minicode.InstructMaxTokens),
			guard:  session.GuardConfig{MaxChars: minicode.InstructMaxTokens*len("package") - 1},
			exp:    strings.Repeat("package", minicode.InstructMaxTokens),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc, _ := newMinicode(t, tt.script, minicode.Config{Guard: tt.guard})

			if !mc.LoadModel("tiny.gguf") {
				t.Fatal("load should succeed")
			}

			got, err := mc.Instruct(context.Background(), "write a main package", "")

			if !errors.Is(err, tt.err) {
				t.Fatalf("got error %v, exp %v", err, tt.err)
			}

			if got != tt.exp {
				t.Fatalf("got %q, exp %q", got, tt.exp)
			}
		})
	}
}

func Test_InstructFileTooLarge(t *testing.T) {
	mc, b := newMinicode(t, []backend.Token{tokPackage}, minicode.Config{})

	if !mc.LoadModel("tiny.gguf") {
		t.Fatal("load should succeed")
	}

	content := strings.Repeat("x\n", prompt.MaxFileLines)

	if _, err := mc.Instruct(context.Background(), "add a comment", content); !errors.Is(err, prompt.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}

	if got := b.Stats().Decodes; got != 0 {
		t.Fatalf("got %d decode calls for a refused file", got)
	}
}

func Test_InstructNotLoaded(t *testing.T) {
	mc, _ := newMinicode(t, nil, minicode.Config{})

	if _, err := mc.Instruct(context.Background(), "anything", ""); !errors.Is(err, session.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func Test_Shutdown(t *testing.T) {
	mc, b := newMinicode(t, []backend.Token{tokPackage}, minicode.Config{})

	if !mc.LoadModel("tiny.gguf") {
		t.Fatal("load should succeed")
	}

	if err := mc.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %s", err)
	}

	if err := mc.Shutdown(context.Background()); err == nil {
		t.Fatal("a second shutdown should fail")
	}

	if mc.LoadModel("tiny.gguf") {
		t.Fatal("load after shutdown should fail")
	}

	if st := b.Stats(); st.LiveModels != 0 {
		t.Fatalf("shutdown should unload, got %+v", st)
	}
}
