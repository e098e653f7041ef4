package session

import (
	"fmt"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/ardanlabs/minicode/sdk/minicode/tokenizer"
	"github.com/maypok86/otter/v2"
)

const defPieceCacheSize = 4096

// pieces memoizes token fragments for the vocabulary of one loaded model. A
// new cache is built on every load so fragments never outlive their model.
type pieces struct {
	tok   tokenizer.Adapter
	cache *otter.Cache[backend.Token, string]
}

func newPieces(tok tokenizer.Adapter, size int) (*pieces, error) {
	if size <= 0 {
		return &pieces{tok: tok}, nil
	}

	opt := otter.Options[backend.Token, string]{
		MaximumSize: size,
	}

	cache, err := otter.New(&opt)
	if err != nil {
		return nil, fmt.Errorf("new-pieces: constructing cache: %w", err)
	}

	p := pieces{
		tok:   tok,
		cache: cache,
	}

	return &p, nil
}

func (p *pieces) decode(t backend.Token) string {
	if p.cache == nil {
		return p.tok.DecodeOne(t)
	}

	if s, exists := p.cache.GetIfPresent(t); exists {
		return s
	}

	s := p.tok.DecodeOne(t)
	p.cache.Set(t, s)

	return s
}

func (p *pieces) release() {
	if p.cache != nil {
		p.cache.InvalidateAll()
	}
}
