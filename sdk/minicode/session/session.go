// Package session manages the lifecycle of a loaded model and runs
// generations against it, either one-shot or streamed through a Callback.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/ardanlabs/minicode/sdk/minicode/engine"
	"github.com/ardanlabs/minicode/sdk/minicode/sampler"
	"github.com/ardanlabs/minicode/sdk/minicode/tokenizer"
)

// ErrNotLoaded is returned when a generation is requested with no model
// loaded.
var ErrNotLoaded = errors.New("session not loaded")

// State represents the lifecycle state of a session.
type State int

// Set of session states.
const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}

	return "unloaded"
}

// Config represents the session configuration.
//
// PieceCacheSize is the number of token fragments memoized per loaded model.
// When set to 0, the default value is 4096, a negative value disables the
// cache.
type Config struct {
	engine.Config
	PieceCacheSize int
}

// Request represents one generation.
//
// MaxTokens is the maximum number of tokens to generate. Zero or a negative
// value produces an empty result without touching the model.
type Request struct {
	Prompt    string
	MaxTokens int
	Params    sampler.Params
}

// =============================================================================

// Session owns at most one loaded model and its decode context. All methods
// are safe for concurrent use, calls are serialized.
type Session struct {
	backend backend.Backend
	engine  *engine.Engine
	log     engine.Logger
	cfg     Config

	mu     sync.Mutex
	handle *engine.Handle
	tok    tokenizer.Adapter
	pieces *pieces
}

// New constructs an unloaded session.
func New(b backend.Backend, cfg Config) *Session {
	if cfg.PieceCacheSize == 0 {
		cfg.PieceCacheSize = defPieceCacheSize
	}

	e := engine.New(b, cfg.Config)
	cfg.Config = e.Config()

	s := Session{
		backend: b,
		engine:  e,
		log:     cfg.Config.Log,
		cfg:     cfg,
	}

	return &s
}

// Load loads the model at path, releasing the currently loaded model first.
// On failure the session is left unloaded.
func (s *Session) Load(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		s.log(ctx, "load", "status", "replacing", "model-file", s.handle.Path())
		s.unload()
	}

	h, err := s.engine.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	tok := tokenizer.New(s.backend, h.Vocab())

	p, err := newPieces(tok, s.cfg.PieceCacheSize)
	if err != nil {
		s.engine.Unload(h)
		return fmt.Errorf("load: %w", err)
	}

	s.handle = h
	s.tok = tok
	s.pieces = p

	return nil
}

// Unload releases the loaded model. Calling Unload on an unloaded session
// does nothing.
func (s *Session) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unload()
}

func (s *Session) unload() {
	if s.handle == nil {
		return
	}

	s.pieces.release()
	s.engine.Unload(s.handle)

	s.handle = nil
	s.tok = tokenizer.Adapter{}
	s.pieces = nil
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return StateUnloaded
	}

	return StateLoaded
}

// ModelPath returns the file of the loaded model, empty when unloaded.
func (s *Session) ModelPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return ""
	}

	return s.handle.Path()
}

// Config returns the configuration after defaults were applied.
func (s *Session) Config() Config {
	return s.cfg
}

// Generate runs a generation to completion and returns the text. The
// callback is not involved so only ctx can stop it early. When decoding
// fails after at least one token was produced, the partial text is returned
// with a nil error.
func (s *Session) Generate(ctx context.Context, req Request) (string, error) {
	res, err := s.run(ctx, "generate", req, Funcs{})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	return res.Text, nil
}
