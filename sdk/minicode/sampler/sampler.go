// Package sampler builds the per-request chain that turns the model's last
// logits into the next token.
package sampler

import (
	"fmt"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
)

const (
	// MinTemperature replaces non-positive temperatures. The chain always
	// draws from a distribution, so a near-zero temperature stands in for
	// greedy decoding.
	MinTemperature float32 = 1e-5

	defTopK          = 40
	defTopP          = 0.9
	defRepeatPenalty = 1.0
)

// Params represent the sampling parameters for one generation.
//
// Temperature controls the randomness of the output. Values at or below zero
// are replaced by MinTemperature.
//
// TopK limits the pool of candidate tokens to the K most probable. Values at
// or below zero use the default of 40.
//
// TopP keeps the smallest set of candidates whose cumulative probability
// reaches P. Values outside (0, 1] use the default of 0.9.
//
// RepeatPenalty and RepeatLastN are accepted and normalized, a penalty at or
// below zero becomes 1.0 and a negative window becomes 0, but they are not
// applied by the chain.
//
// Seed makes generation reproducible. A negative seed asks the library for a
// random seed.
type Params struct {
	Temperature   float32
	TopK          int
	TopP          float32
	RepeatPenalty float32
	RepeatLastN   int
	Seed          int
}

// Normalize applies the defaults to out of range values.
func Normalize(p Params) Params {
	if p.Temperature <= 0 {
		p.Temperature = MinTemperature
	}

	if p.TopK <= 0 {
		p.TopK = defTopK
	}

	if p.TopP <= 0 || p.TopP > 1 {
		p.TopP = defTopP
	}

	if p.RepeatPenalty <= 0 {
		p.RepeatPenalty = defRepeatPenalty
	}

	if p.RepeatLastN < 0 {
		p.RepeatLastN = 0
	}

	return p
}

// RepeatIgnored reports whether the params ask for a repetition penalty the
// chain will not apply.
func (p Params) RepeatIgnored() bool {
	return p.RepeatPenalty != defRepeatPenalty
}

// Stages returns the chain stages in the order they are applied.
func (p Params) Stages() []backend.Stage {
	seed := backend.DefaultSeed
	if p.Seed >= 0 {
		seed = uint32(p.Seed)
	}

	return []backend.Stage{
		{Kind: backend.StageTemperature, Temperature: p.Temperature},
		{Kind: backend.StageTopK, TopK: int32(p.TopK)},
		{Kind: backend.StageTopP, TopP: p.TopP},
		{Kind: backend.StageDist, Seed: seed},
	}
}

// =============================================================================

// Chain is a sampler chain built for one generation.
type Chain struct {
	backend backend.Backend
	handle  backend.Sampler
	params  Params
}

// Build normalizes the params and creates the chain. The caller must Close
// the chain when the generation ends.
func Build(b backend.Backend, p Params) (*Chain, error) {
	p = Normalize(p)

	handle, err := b.NewSampler(p.Stages())
	if err != nil {
		return nil, fmt.Errorf("build: unable to create sampler: %w", err)
	}

	c := Chain{
		backend: b,
		handle:  handle,
		params:  p,
	}

	return &c, nil
}

// Params returns the normalized params the chain was built with.
func (c *Chain) Params() Params {
	return c.params
}

// Sample draws the next token from the context.
func (c *Chain) Sample(lctx backend.Context) backend.Token {
	return c.backend.Sample(c.handle, lctx)
}

// Close releases the chain. Calling Close more than once does nothing.
func (c *Chain) Close() {
	if c == nil || c.handle == 0 {
		return
	}

	c.backend.FreeSampler(c.handle)
	c.handle = 0
}
