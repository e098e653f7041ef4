package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/ardanlabs/minicode/sdk/minicode/engine"
	"github.com/ardanlabs/minicode/sdk/minicode/sampler"
	"github.com/google/uuid"
)

// Stop explains why a generation ended.
type Stop int

// Set of reasons a generation ends.
const (
	StopEmpty Stop = iota
	StopEOG
	StopMaxTokens
	StopCancelled
	StopDecodeFailed
)

func (s Stop) String() string {
	switch s {
	case StopEOG:
		return "eog"
	case StopMaxTokens:
		return "max-tokens"
	case StopCancelled:
		return "cancelled"
	case StopDecodeFailed:
		return "decode-failed"
	}

	return "empty"
}

// Result represents the outcome of a generation.
type Result struct {
	Text         string
	Tokens       int
	PromptTokens int
	Stop         Stop
}

// MaxPromptTokens caps the encoded prompt whatever the context capacity.
const MaxPromptTokens = 2048

var errCancelled = errors.New("cancelled")

// GenerateStream runs a generation, handing every fragment to cb in order
// before the next token is decoded. cb is polled for cancellation between
// prefill chunks and before every sampled token, as is ctx. The
// end-of-generation token is never handed to cb. A decode failure while
// sampling ends the generation with the partial result and a nil error.
func (s *Session) GenerateStream(ctx context.Context, req Request, cb Callback) (Result, error) {
	if cb == nil {
		cb = Funcs{}
	}

	res, err := s.run(ctx, "generate-stream", req, cb)
	if err != nil {
		return res, fmt.Errorf("generate-stream: %w", err)
	}

	return res, nil
}

// Tokens returns an iterator over the fragments of a generation. Breaking out
// of the loop cancels the generation at its next poll point. A failure is
// yielded once as the final element.
func (s *Session) Tokens(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var stopped bool

		cb := Funcs{
			Token: func(fragment string) {
				if !stopped && !yield(fragment, nil) {
					stopped = true
				}
			},
			Cancelled: func() bool {
				return stopped
			},
		}

		if _, err := s.GenerateStream(ctx, req, cb); err != nil && !stopped {
			yield("", err)
		}
	}
}

func (s *Session) run(ctx context.Context, op string, req Request, cb Callback) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return Result{}, ErrNotLoaded
	}

	id := uuid.NewString()
	start := time.Now()

	if req.MaxTokens <= 0 || req.Prompt == "" {
		s.log(ctx, op, "request-id", id, "status", "empty-request", "max-tokens", req.MaxTokens, "prompt-len", len(req.Prompt))
		return Result{Stop: StopEmpty}, nil
	}

	tokens, err := s.tok.Encode(req.Prompt, min(MaxPromptTokens, s.cfg.ContextCapacity))
	if err != nil {
		s.log(ctx, op, "request-id", id, "status", "unencodable-prompt", "ERROR", err)
		return Result{Stop: StopEmpty}, nil
	}

	if len(tokens) == 0 {
		return Result{Stop: StopEmpty}, nil
	}

	res := Result{
		PromptTokens: len(tokens),
	}

	defer func() {
		s.log(ctx, op, "request-id", id, "status", "finished", "stop", res.Stop.String(),
			"prompt-tokens", res.PromptTokens, "tokens", res.Tokens, "took", time.Since(start).String())
	}()

	cancelled := func() bool {
		return cb.IsCancelled() || ctx.Err() != nil
	}

	// The previous generation's tokens are still in the attention memory.
	if err := s.engine.ResetMemory(s.handle); err != nil {
		res.Stop = StopDecodeFailed
		return res, err
	}

	hook := func(done int, total int) error {
		if cancelled() {
			return errCancelled
		}
		return nil
	}

	if err := s.engine.Prefill(s.handle, tokens, hook); err != nil {
		if errors.Is(err, errCancelled) {
			res.Stop = StopCancelled
			return res, nil
		}

		res.Stop = StopDecodeFailed
		return res, err
	}

	chain, err := sampler.Build(s.backend, req.Params)
	if err != nil {
		res.Stop = StopDecodeFailed
		return res, fmt.Errorf("%w: %w", engine.ErrDecodeFailed, err)
	}
	defer chain.Close()

	if p := chain.Params(); p.RepeatIgnored() {
		s.log(ctx, op, "request-id", id, "status", "repeat-penalty-not-applied",
			"repeat-penalty", p.RepeatPenalty, "repeat-last-n", p.RepeatLastN)
	}

	text, stop := s.sample(ctx, op, id, req.MaxTokens, chain, cb, cancelled)

	res.Text = text.String()
	res.Tokens = text.tokens
	res.Stop = stop

	return res, nil
}

// output collects the generated fragments.
type output struct {
	strings.Builder
	tokens int
}

func (s *Session) sample(ctx context.Context, op string, id string, maxTokens int, chain *sampler.Chain, cb Callback, cancelled func() bool) (*output, Stop) {
	var out output

	for out.tokens < maxTokens {
		if cancelled() {
			return &out, StopCancelled
		}

		tok := chain.Sample(s.handle.Context())
		if s.tok.IsEOG(tok) {
			return &out, StopEOG
		}

		fragment := s.pieces.decode(tok)
		out.tokens++

		if fragment != "" {
			out.WriteString(fragment)
			cb.OnToken(fragment)
		}

		if out.tokens == maxTokens {
			break
		}

		if err := s.engine.Step(s.handle, tok); err != nil {
			s.log(ctx, op, "request-id", id, "status", "decode-failed", "tokens", out.tokens, "ERROR", err)
			return &out, StopDecodeFailed
		}
	}

	return &out, StopMaxTokens
}
