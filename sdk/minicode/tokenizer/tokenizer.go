// Package tokenizer converts between text and model tokens using the
// vocabulary of a loaded model.
package tokenizer

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
)

// ErrTokenize is returned when text can't be converted into tokens.
var ErrTokenize = errors.New("tokenize failed")

// Adapter binds a backend to the vocabulary of one model. It holds no other
// state and is only valid while that model is loaded.
type Adapter struct {
	backend backend.Backend
	vocab   backend.Vocab
}

// New returns an adapter for the vocabulary.
func New(b backend.Backend, v backend.Vocab) Adapter {
	return Adapter{
		backend: b,
		vocab:   v,
	}
}

// Encode converts text into at most capacity tokens. Empty text produces no
// tokens and no error.
func (a Adapter) Encode(text string, capacity int) ([]backend.Token, error) {
	if text == "" {
		return nil, nil
	}

	if capacity <= 0 {
		return nil, fmt.Errorf("encode: capacity %d: %w", capacity, ErrTokenize)
	}

	tokens, err := a.backend.Tokenize(a.vocab, text, capacity)
	if err != nil {
		return nil, fmt.Errorf("encode: %w: %w", ErrTokenize, err)
	}

	if len(tokens) > capacity {
		return nil, fmt.Errorf("encode: %d tokens exceed capacity %d: %w", len(tokens), capacity, ErrTokenize)
	}

	return tokens, nil
}

// DecodeOne renders a single token. Tokens without a printable piece render
// as the empty string, and the result may be a partial UTF-8 sequence that
// only becomes valid once concatenated with the following fragments.
func (a Adapter) DecodeOne(tok backend.Token) string {
	return string(a.backend.TokenToPiece(a.vocab, tok))
}

// IsEOG reports whether the token ends generation.
func (a Adapter) IsEOG(tok backend.Token) bool {
	return a.backend.IsEOG(a.vocab, tok)
}
