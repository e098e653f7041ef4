package sampler_test

import (
	"context"
	"testing"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/ardanlabs/minicode/sdk/minicode/backend/backendtest"
	"github.com/ardanlabs/minicode/sdk/minicode/engine"
	"github.com/ardanlabs/minicode/sdk/minicode/sampler"
	"github.com/google/go-cmp/cmp"
)

func Test_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   sampler.Params
		exp  sampler.Params
	}{
		{
			name: "defaults",
			in:   sampler.Params{},
			exp:  sampler.Params{Temperature: sampler.MinTemperature, TopK: 40, TopP: 0.9, RepeatPenalty: 1.0},
		},
		{
			name: "negative",
			in:   sampler.Params{Temperature: -1, TopK: -5, TopP: -0.1, RepeatPenalty: -2, RepeatLastN: -64, Seed: -1},
			exp:  sampler.Params{Temperature: sampler.MinTemperature, TopK: 40, TopP: 0.9, RepeatPenalty: 1.0, Seed: -1},
		},
		{
			name: "top-p-over-one",
			in:   sampler.Params{Temperature: 0.7, TopK: 10, TopP: 1.5, RepeatPenalty: 1.1, RepeatLastN: 64, Seed: 42},
			exp:  sampler.Params{Temperature: 0.7, TopK: 10, TopP: 0.9, RepeatPenalty: 1.1, RepeatLastN: 64, Seed: 42},
		},
		{
			name: "valid",
			in:   sampler.Params{Temperature: 0.1, TopK: 1, TopP: 1, RepeatPenalty: 1, Seed: 0},
			exp:  sampler.Params{Temperature: 0.1, TopK: 1, TopP: 1, RepeatPenalty: 1, Seed: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.exp, sampler.Normalize(tt.in)); diff != "" {
				t.Fatalf("params mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_StageOrder(t *testing.T) {
	b := backendtest.New(backendtest.Config{})

	c, err := sampler.Build(b, sampler.Params{Temperature: 0.2, TopK: 20, TopP: 0.8, Seed: 7})
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	defer c.Close()

	exp := []backend.Stage{
		{Kind: backend.StageTemperature, Temperature: 0.2},
		{Kind: backend.StageTopK, TopK: 20},
		{Kind: backend.StageTopP, TopP: 0.8},
		{Kind: backend.StageDist, Seed: 7},
	}

	if diff := cmp.Diff(exp, b.LastStages()); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
}

func Test_NegativeSeed(t *testing.T) {
	stages := sampler.Params{Seed: -1}.Stages()

	if got := stages[len(stages)-1].Seed; got != backend.DefaultSeed {
		t.Fatalf("got seed %d, exp the default seed", got)
	}
}

func Test_CloseIdempotent(t *testing.T) {
	b := backendtest.New(backendtest.Config{})

	c, err := sampler.Build(b, sampler.Params{})
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	c.Close()
	c.Close()

	st := b.Stats()
	if st.LiveSamplers != 0 || st.DoubleFrees != 0 {
		t.Fatalf("unexpected accounting: %+v", st)
	}
}

func Test_Determinism(t *testing.T) {
	pieces := map[backend.Token]string{1: "a", 2: "b", 3: "c", 4: "d"}

	run := func() []backend.Token {
		b := backendtest.New(backendtest.Config{Pieces: pieces})
		e := engine.New(b, engine.Config{IgnoreIntegrityCheck: true})

		h, err := e.Load(context.Background(), "any.gguf")
		if err != nil {
			t.Fatalf("load: %s", err)
		}
		defer e.Unload(h)

		c, err := sampler.Build(b, sampler.Params{Temperature: 0.9, Seed: 42})
		if err != nil {
			t.Fatalf("build: %s", err)
		}
		defer c.Close()

		if err := e.Prefill(h, []backend.Token{backendtest.ByteBase + 'x'}, nil); err != nil {
			t.Fatalf("prefill: %s", err)
		}

		var toks []backend.Token
		for range 8 {
			tok := c.Sample(h.Context())
			toks = append(toks, tok)
			if err := e.Step(h, tok); err != nil {
				t.Fatalf("step: %s", err)
			}
		}

		return toks
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Fatalf("same seed should sample the same tokens (-a +b):\n%s", diff)
	}
}

func Test_RepeatIgnored(t *testing.T) {
	if sampler.Normalize(sampler.Params{}).RepeatIgnored() {
		t.Fatal("a neutral penalty should not be reported")
	}

	if !sampler.Normalize(sampler.Params{RepeatPenalty: 1.1}).RepeatIgnored() {
		t.Fatal("a non-neutral penalty should be reported")
	}
}
