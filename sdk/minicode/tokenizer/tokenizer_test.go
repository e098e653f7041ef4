package tokenizer_test

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/ardanlabs/minicode/sdk/minicode/backend/backendtest"
	"github.com/ardanlabs/minicode/sdk/minicode/tokenizer"
)

func newAdapter(t *testing.T, cfg backendtest.Config) tokenizer.Adapter {
	t.Helper()

	b := backendtest.New(cfg)

	mdl, err := b.LoadModel("tiny.gguf")
	if err != nil {
		t.Fatalf("load: %s", err)
	}

	return tokenizer.New(b, b.Vocab(mdl))
}

func Test_Encode(t *testing.T) {
	a := newAdapter(t, backendtest.Config{Reject: "\x00"})

	tests := []struct {
		name     string
		text     string
		capacity int
		count    int
		fail     bool
	}{
		{name: "empty", text: "", capacity: 8, count: 0},
		{name: "fits", text: "hello", capacity: 8, count: 5},
		{name: "exact", text: "hello", capacity: 5, count: 5},
		{name: "over", text: "hello", capacity: 4, fail: true},
		{name: "zero-capacity", text: "h", capacity: 0, fail: true},
		{name: "rejected", text: "he\x00llo", capacity: 8, fail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := a.Encode(tt.text, tt.capacity)

			if tt.fail {
				if !errors.Is(err, tokenizer.ErrTokenize) {
					t.Fatalf("expected ErrTokenize, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("encode: %s", err)
			}

			if len(toks) != tt.count {
				t.Fatalf("got %d tokens, exp %d", len(toks), tt.count)
			}
		})
	}
}

func Test_DecodeOne(t *testing.T) {
	a := newAdapter(t, backendtest.Config{
		Pieces: map[backend.Token]string{1: "func", 2: ""},
	})

	if got := a.DecodeOne(1); got != "func" {
		t.Fatalf("got %q, exp %q", got, "func")
	}

	if got := a.DecodeOne(2); got != "" {
		t.Fatalf("got %q, exp empty", got)
	}

	if got := a.DecodeOne(99); got != "" {
		t.Fatalf("unknown token should decode empty, got %q", got)
	}

	if !a.IsEOG(backendtest.EOG) {
		t.Fatal("expected EOG to be detected")
	}
}

func Test_PartialUTF8(t *testing.T) {
	a := newAdapter(t, backendtest.Config{})

	toks, err := a.Encode("é", 8)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}

	if len(toks) != 2 {
		t.Fatalf("expected 2 byte tokens, got %d", len(toks))
	}

	first := a.DecodeOne(toks[0])
	if utf8.ValidString(first) {
		t.Fatalf("first fragment should be a partial sequence, got %q", first)
	}

	if got := first + a.DecodeOne(toks[1]); got != "é" {
		t.Fatalf("got %q, exp %q", got, "é")
	}
}
