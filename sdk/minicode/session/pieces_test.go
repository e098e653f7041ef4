package session

import (
	"testing"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/ardanlabs/minicode/sdk/minicode/backend/backendtest"
	"github.com/ardanlabs/minicode/sdk/minicode/tokenizer"
)

func Test_Pieces(t *testing.T) {
	b := backendtest.New(backendtest.Config{Pieces: map[backend.Token]string{1: "go", 2: "pher"}})

	mdl, err := b.LoadModel("tiny.gguf")
	if err != nil {
		t.Fatalf("load: %s", err)
	}
	defer b.FreeModel(mdl)

	for _, size := range []int{-1, 16} {
		p, err := newPieces(tokenizer.New(b, b.Vocab(mdl)), size)
		if err != nil {
			t.Fatalf("new-pieces: %s", err)
		}

		for range 3 {
			if got := p.decode(1) + p.decode(2); got != "gopher" {
				t.Fatalf("size %d: got %q", size, got)
			}
		}

		if size > 0 {
			if s, exists := p.cache.GetIfPresent(1); !exists || s != "go" {
				t.Fatalf("expected the fragment to be cached, got %q %v", s, exists)
			}
		}

		p.release()
	}
}
