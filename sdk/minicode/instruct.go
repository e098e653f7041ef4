package minicode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ardanlabs/minicode/sdk/minicode/prompt"
	"github.com/ardanlabs/minicode/sdk/minicode/sampler"
	"github.com/ardanlabs/minicode/sdk/minicode/session"
)

// Defaults used for instruction requests.
const (
	InstructMaxTokens     = 900
	InstructTemperature   = 0.1
	InstructTopP          = 0.9
	InstructRepeatPenalty = 1.1
	InstructSeed          = 42
)

// Set of errors returned by Instruct.
var (
	ErrTooComplex  = errors.New(prompt.TooComplex)
	ErrSafetyLimit = errors.New("stopped by safety limit")
)

// Instruct asks the model to rewrite fileContent following instruction and
// returns the new file content. prompt.ErrFileTooLarge is returned before any
// generation when fileContent is over the file limits. ErrTooComplex is
// returned when the model refuses the task. ErrSafetyLimit is returned with the partial output when
// a guard budget stopped the generation.
func (m *Minicode) Instruct(ctx context.Context, instruction string, fileContent string, opts ...prompt.Option) (out string, err error) {
	defer m.recoverPanic(ctx, "instruct", func() {
		out, err = "", errors.New("instruct: generation panicked")
	})

	if err := m.acquire(); err != nil {
		return "", fmt.Errorf("instruct: %w", err)
	}
	defer m.release()

	if m.sess.State() != session.StateLoaded {
		return "", fmt.Errorf("instruct: %w", session.ErrNotLoaded)
	}

	if err := prompt.CheckFileSize(fileContent); err != nil {
		return "", fmt.Errorf("instruct: %w", err)
	}

	p, err := prompt.Build(instruction, fileContent, opts...)
	if err != nil {
		return "", fmt.Errorf("instruct: %w", err)
	}

	req := session.Request{
		Prompt:    p,
		MaxTokens: InstructMaxTokens,
		Params: sampler.Params{
			Temperature:   InstructTemperature,
			TopP:          InstructTopP,
			RepeatPenalty: InstructRepeatPenalty,
			Seed:          InstructSeed,
		},
	}

	guard := session.NewGuard(nil, m.cfg.Guard)
	defer guard.Stop()

	res, err := m.sess.GenerateStream(ctx, req, guard)
	guard.Stop()

	if err != nil {
		return "", fmt.Errorf("instruct: %w", err)
	}

	out = strings.TrimSpace(res.Text)

	m.log(ctx, "instruct", "stop", res.Stop.String(), "prompt-tokens", res.PromptTokens, "tokens", res.Tokens)

	switch {
	case prompt.IsTooComplex(out):
		return "", fmt.Errorf("instruct: %w", ErrTooComplex)

	case res.Stop == session.StopCancelled && guard.Reason() == session.ReasonSafetyLimit:
		return out, fmt.Errorf("instruct: %w", ErrSafetyLimit)
	}

	return out, nil
}
