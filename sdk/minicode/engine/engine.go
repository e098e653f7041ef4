// Package engine owns the model and decode context pair and feeds tokens
// through it, splitting prompts into batches the context can accept.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
)

// Set of errors returned by the engine.
var (
	ErrModelNotFound     = errors.New("model not found")
	ErrContextInitFailed = errors.New("context init failed")
	ErrDecodeFailed      = errors.New("decode failed")
)

// PrefillFunc is called between prefill chunks with the number of prompt
// tokens decoded so far. Returning an error stops the prefill and the error
// is returned as is.
type PrefillFunc func(done int, total int) error

// Handle is a loaded model and the decode context created from it. It is
// created by Load and released by Unload, and is not safe for concurrent
// use.
type Handle struct {
	path     string
	model    backend.Model
	lctx     backend.Context
	vocab    backend.Vocab
	pos      int
	released bool
}

// Path returns the file the model was loaded from.
func (h *Handle) Path() string {
	return h.path
}

// Vocab returns the vocabulary of the model.
func (h *Handle) Vocab() backend.Vocab {
	return h.vocab
}

// Context returns the decode context.
func (h *Handle) Context() backend.Context {
	return h.lctx
}

// Pos returns the number of tokens held in the attention memory.
func (h *Handle) Pos() int {
	return h.pos
}

// =============================================================================

// Engine loads models and runs decode calls against them.
type Engine struct {
	backend backend.Backend
	cfg     Config
	log     Logger
}

// New constructs an engine for the backend.
func New(b backend.Backend, cfg Config) *Engine {
	cfg = adjustConfig(cfg)

	return &Engine{
		backend: b,
		cfg:     cfg,
		log:     cfg.Log,
	}
}

// Config returns the configuration after defaults were applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// Load loads the model at path and creates its decode context. Nothing is
// left allocated when an error is returned.
func (e *Engine) Load(ctx context.Context, path string) (*Handle, error) {
	if path == "" {
		return nil, fmt.Errorf("load: path is required: %w", ErrModelNotFound)
	}

	if !e.cfg.IgnoreIntegrityCheck {
		e.log(ctx, "load", "status", "checking-model-integrity", "model-file", path)

		if err := backend.CheckModel(path, e.cfg.CheckSHA); err != nil {
			return nil, fmt.Errorf("load: %w: %w", ErrModelNotFound, err)
		}
	}

	start := time.Now()

	mdl, err := e.backend.LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("load: unable to load model: %w: %w", ErrModelNotFound, err)
	}

	params := backend.ContextParams{
		NCtx:     uint32(e.cfg.ContextCapacity),
		NBatch:   uint32(e.cfg.BatchCapacity),
		NThreads: int32(e.cfg.Threads),
	}

	lctx, err := e.backend.NewContext(mdl, params)
	if err != nil {
		e.backend.FreeModel(mdl)
		return nil, fmt.Errorf("load: unable to create context: %w: %w", ErrContextInitFailed, err)
	}

	h := Handle{
		path:  path,
		model: mdl,
		lctx:  lctx,
		vocab: e.backend.Vocab(mdl),
	}

	e.log(ctx, "load", "status", "loaded", "model-file", path,
		"context-capacity", e.cfg.ContextCapacity, "batch-capacity", e.cfg.BatchCapacity,
		"took", time.Since(start).String())

	return &h, nil
}

// Unload frees the context and then the model. Unloading a nil or already
// released handle does nothing.
func (e *Engine) Unload(h *Handle) {
	if h == nil || h.released {
		return
	}

	h.released = true

	e.backend.FreeContext(h.lctx)
	e.backend.FreeModel(h.model)

	h.lctx = 0
	h.model = 0
	h.vocab = 0
	h.pos = 0
}

// ResetMemory clears the attention memory so the next prefill starts from
// position zero.
func (e *Engine) ResetMemory(h *Handle) error {
	if h == nil || h.released {
		return fmt.Errorf("reset-memory: handle released: %w", ErrDecodeFailed)
	}

	if err := e.backend.ClearMemory(h.lctx); err != nil {
		return fmt.Errorf("reset-memory: %w: %w", ErrDecodeFailed, err)
	}

	h.pos = 0

	return nil
}

// Prefill decodes the prompt tokens in consecutive chunks of at most the
// batch capacity. The first chunk that fails stops the prefill. The hook,
// when not nil, runs between chunks.
func (e *Engine) Prefill(h *Handle, tokens []backend.Token, hook PrefillFunc) error {
	total := len(tokens)

	for start := 0; start < total; start += e.cfg.BatchCapacity {
		end := min(start+e.cfg.BatchCapacity, total)

		if err := e.decode(h, tokens[start:end]); err != nil {
			return fmt.Errorf("prefill: chunk[%d:%d]: %w", start, end, err)
		}

		if hook != nil && end < total {
			if err := hook(end, total); err != nil {
				return err
			}
		}
	}

	return nil
}

// Step decodes a single sampled token, advancing the position by one.
func (e *Engine) Step(h *Handle, tok backend.Token) error {
	if err := e.decode(h, []backend.Token{tok}); err != nil {
		return fmt.Errorf("step: %w", err)
	}

	return nil
}

func (e *Engine) decode(h *Handle, tokens []backend.Token) error {
	if h == nil || h.released {
		return fmt.Errorf("handle released: %w", ErrDecodeFailed)
	}

	if h.pos+len(tokens) > e.cfg.ContextCapacity {
		return fmt.Errorf("context full: pos[%d] n[%d] capacity[%d]: %w", h.pos, len(tokens), e.cfg.ContextCapacity, ErrDecodeFailed)
	}

	if err := e.backend.Decode(h.lctx, tokens, h.pos); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	h.pos += len(tokens)

	return nil
}
