// Package backendtest provides a deterministic, in-process implementation of
// backend.Backend for tests. It keeps count of every live handle, records
// decode calls and supports failure injection so lifecycle and streaming
// behavior can be verified without the native library or a model file.
package backendtest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
)

// ByteBase is the first token id used for prompt bytes. A prompt byte b is
// tokenized as ByteBase+b and renders back as that single byte.
const ByteBase backend.Token = 1000

// EOG is the default end-of-generation token.
const EOG backend.Token = 0

// Config configures the test backend.
//
// Pieces maps generated token ids to the text they render as. Ids must be
// below ByteBase. EOG is added automatically with an empty piece.
//
// Script, when set, makes every sampler return these tokens in order and
// EOG once the script is exhausted. Without a script tokens are drawn from
// Pieces by a seeded sampler over synthetic logits.
//
// Reject makes Tokenize fail for any text containing it.
//
// DecodeDelay slows every decode call to widen race windows in tests.
type Config struct {
	Pieces      map[backend.Token]string
	Script      []backend.Token
	Reject      string
	DecodeDelay time.Duration
}

// Stats is a snapshot of the backend's resource accounting.
type Stats struct {
	LiveModels    int
	LiveContexts  int
	LiveSamplers  int
	PeakModels    int
	PeakContexts  int
	ModelsLoaded  int
	DoubleFrees   int
	OrderErrors   int
	Decodes       int
	DecodedTokens int
	MaxBatch      int
	Samples       int
	Clears        int
	Overlaps      int
}

type model struct {
	path  string
	freed bool
}

type decodeCtx struct {
	model  backend.Model
	params backend.ContextParams
	pos    int
	last   backend.Token
	freed  bool
}

type sampler struct {
	stages []backend.Stage
	draw   *draw
	next   int
	freed  bool
}

// Backend is a deterministic backend.Backend.
type Backend struct {
	cfg    Config
	vocab  []backend.Token
	active atomic.Int32

	mu          sync.Mutex
	nextID      uintptr
	models      map[backend.Model]*model
	contexts    map[backend.Context]*decodeCtx
	samplers    map[backend.Sampler]*sampler
	stats       Stats
	failLoad    error
	failContext error
	failDecode  int
	lastStages  []backend.Stage
	batches     []int
}

// New constructs a test backend.
func New(cfg Config) *Backend {
	pieces := make(map[backend.Token]string, len(cfg.Pieces)+1)
	for k, v := range cfg.Pieces {
		pieces[k] = v
	}
	if _, exists := pieces[EOG]; !exists {
		pieces[EOG] = ""
	}
	cfg.Pieces = pieces

	vocab := make([]backend.Token, 0, len(pieces))
	for k := range pieces {
		vocab = append(vocab, k)
	}
	sort.Slice(vocab, func(i, j int) bool { return vocab[i] < vocab[j] })

	return &Backend{
		cfg:      cfg,
		vocab:    vocab,
		models:   make(map[backend.Model]*model),
		contexts: make(map[backend.Context]*decodeCtx),
		samplers: make(map[backend.Sampler]*sampler),
	}
}

// -------------------------------------------------------------------------
// Failure injection.

// FailLoad makes every following LoadModel call fail with err. A nil err
// clears the failure.
func (b *Backend) FailLoad(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failLoad = err
}

// FailContext makes every following NewContext call fail with err. A nil err
// clears the failure.
func (b *Backend) FailContext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failContext = err
}

// FailDecodeAt makes the n-th following decode call fail. Zero clears it.
func (b *Backend) FailDecodeAt(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failDecode = n
}

// -------------------------------------------------------------------------
// Inspection.

// Stats returns a snapshot of the resource accounting.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stats
}

// Batches returns the size of every decode call made so far.
func (b *Backend) Batches() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]int(nil), b.batches...)
}

// LastStages returns the stages of the most recently built sampler.
func (b *Backend) LastStages() []backend.Stage {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]backend.Stage(nil), b.lastStages...)
}

// ContextParams returns the parameters the most recent live context was
// created with.
func (b *Backend) ContextParams() (backend.ContextParams, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		id backend.Context
		p  backend.ContextParams
	)

	for k, c := range b.contexts {
		if !c.freed && k > id {
			id, p = k, c.params
		}
	}

	return p, id != 0
}

// LivePaths returns the paths of the models that are still loaded.
func (b *Backend) LivePaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var paths []string
	for _, m := range b.models {
		if !m.freed {
			paths = append(paths, m.path)
		}
	}
	sort.Strings(paths)

	return paths
}

// -------------------------------------------------------------------------
// backend.Backend implementation.

// LoadModel implements backend.Backend.
func (b *Backend) LoadModel(path string) (backend.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failLoad != nil {
		return 0, b.failLoad
	}

	b.nextID++
	id := backend.Model(b.nextID)
	b.models[id] = &model{path: path}

	b.stats.LiveModels++
	b.stats.ModelsLoaded++
	b.stats.PeakModels = max(b.stats.PeakModels, b.stats.LiveModels)

	return id, nil
}

// NewContext implements backend.Backend.
func (b *Backend) NewContext(m backend.Model, p backend.ContextParams) (backend.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failContext != nil {
		return 0, b.failContext
	}

	mdl, exists := b.models[m]
	if !exists || mdl.freed {
		return 0, fmt.Errorf("new-context: model %d is not live", m)
	}

	b.nextID++
	id := backend.Context(b.nextID)
	b.contexts[id] = &decodeCtx{model: m, params: p, last: -1}

	b.stats.LiveContexts++
	b.stats.PeakContexts = max(b.stats.PeakContexts, b.stats.LiveContexts)

	return id, nil
}

// FreeContext implements backend.Backend.
func (b *Backend) FreeContext(c backend.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, exists := b.contexts[c]
	if !exists || ctx.freed {
		b.stats.DoubleFrees++
		return
	}

	if mdl := b.models[ctx.model]; mdl == nil || mdl.freed {
		b.stats.OrderErrors++
	}

	ctx.freed = true
	b.stats.LiveContexts--
}

// FreeModel implements backend.Backend.
func (b *Backend) FreeModel(m backend.Model) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mdl, exists := b.models[m]
	if !exists || mdl.freed {
		b.stats.DoubleFrees++
		return
	}

	for _, ctx := range b.contexts {
		if ctx.model == m && !ctx.freed {
			b.stats.OrderErrors++
		}
	}

	mdl.freed = true
	b.stats.LiveModels--
}

// Vocab implements backend.Backend. The vocabulary shares the model's id.
func (b *Backend) Vocab(m backend.Model) backend.Vocab {
	return backend.Vocab(m)
}

// Tokenize implements backend.Backend. Every byte of text becomes one token.
func (b *Backend) Tokenize(v backend.Vocab, text string, maxTokens int) ([]backend.Token, error) {
	if b.cfg.Reject != "" && strings.Contains(text, b.cfg.Reject) {
		return nil, errors.New("tokenize: vocabulary rejected the input")
	}

	if len(text) > maxTokens {
		return nil, fmt.Errorf("tokenize: %d tokens exceed capacity %d", len(text), maxTokens)
	}

	tokens := make([]backend.Token, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = ByteBase + backend.Token(text[i])
	}

	return tokens, nil
}

// TokenToPiece implements backend.Backend.
func (b *Backend) TokenToPiece(v backend.Vocab, t backend.Token) []byte {
	if t >= ByteBase && t < ByteBase+256 {
		return []byte{byte(t - ByteBase)}
	}

	return []byte(b.cfg.Pieces[t])
}

// IsEOG implements backend.Backend.
func (b *Backend) IsEOG(v backend.Vocab, t backend.Token) bool {
	return t == EOG
}

// Decode implements backend.Backend. It rejects batches larger than the
// context batch size, positions that do not follow the previous decode and
// writes beyond the context capacity.
func (b *Backend) Decode(c backend.Context, tokens []backend.Token, pos int) error {
	if b.active.Add(1) > 1 {
		b.mu.Lock()
		b.stats.Overlaps++
		b.mu.Unlock()
	}
	defer b.active.Add(-1)

	if b.cfg.DecodeDelay > 0 {
		time.Sleep(b.cfg.DecodeDelay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, exists := b.contexts[c]
	if !exists || ctx.freed {
		return fmt.Errorf("decode: context %d is not live", c)
	}

	if b.failDecode > 0 {
		b.failDecode--
		if b.failDecode == 0 {
			return errors.New("decode: injected failure")
		}
	}

	switch {
	case len(tokens) == 0:
		return errors.New("decode: empty batch")
	case len(tokens) > int(ctx.params.NBatch):
		return fmt.Errorf("decode: batch %d exceeds %d", len(tokens), ctx.params.NBatch)
	case pos != ctx.pos:
		return fmt.Errorf("decode: position %d, expected %d", pos, ctx.pos)
	case pos+len(tokens) > int(ctx.params.NCtx):
		return fmt.Errorf("decode: context full at %d", pos)
	}

	ctx.pos += len(tokens)
	ctx.last = tokens[len(tokens)-1]

	b.stats.Decodes++
	b.stats.DecodedTokens += len(tokens)
	b.stats.MaxBatch = max(b.stats.MaxBatch, len(tokens))
	b.batches = append(b.batches, len(tokens))

	return nil
}

// ClearMemory implements backend.Backend.
func (b *Backend) ClearMemory(c backend.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, exists := b.contexts[c]
	if !exists || ctx.freed {
		return fmt.Errorf("clear-memory: context %d is not live", c)
	}

	ctx.pos = 0
	ctx.last = -1
	b.stats.Clears++

	return nil
}

// NewSampler implements backend.Backend.
func (b *Backend) NewSampler(stages []backend.Stage) (backend.Sampler, error) {
	d, err := newDraw(stages)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := backend.Sampler(b.nextID)
	b.samplers[id] = &sampler{stages: stages, draw: d}

	b.lastStages = append([]backend.Stage(nil), stages...)
	b.stats.LiveSamplers++

	return id, nil
}

// Sample implements backend.Backend.
func (b *Backend) Sample(s backend.Sampler, c backend.Context) backend.Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	smp, exists := b.samplers[s]
	if !exists || smp.freed {
		return EOG
	}

	ctx, exists := b.contexts[c]
	if !exists || ctx.freed {
		return EOG
	}

	b.stats.Samples++

	if b.cfg.Script != nil {
		if smp.next >= len(b.cfg.Script) {
			return EOG
		}
		tok := b.cfg.Script[smp.next]
		smp.next++
		return tok
	}

	return smp.draw.next(b.vocab, ctx.pos, ctx.last)
}

// FreeSampler implements backend.Backend.
func (b *Backend) FreeSampler(s backend.Sampler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	smp, exists := b.samplers[s]
	if !exists || smp.freed {
		b.stats.DoubleFrees++
		return
	}

	smp.freed = true
	b.stats.LiveSamplers--
}
