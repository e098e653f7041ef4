// Package minicode provides support for running an offline code writing model
// using llama.cpp via yzma. Every entry point maps failures to empty values
// and logs them, so callers never see an error or a panic.
package minicode

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/ardanlabs/minicode/sdk/minicode/engine"
	"github.com/ardanlabs/minicode/sdk/minicode/sampler"
	"github.com/ardanlabs/minicode/sdk/minicode/session"
)

// Version contains the current version of the minicode package.
const Version = "0.4.0"

// Logger provides a function for logging messages from different APIs.
type Logger = engine.Logger

// DiscardLogger discards logging.
var DiscardLogger = func(ctx context.Context, msg string, args ...any) {}

// FmtLogger provides a basic logger that writes to stdout.
var FmtLogger = func(ctx context.Context, msg string, args ...any) {
	fmt.Print(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Printf(" %v[%v]", args[i], args[i+1])
		}
	}
	fmt.Println()
}

// Config represents the configuration of a Minicode value. The defaults are
// used when these values are set to 0.
//
// ContextCapacity is the number of tokens the model can attend to during one
// generation. When set to 0, the default value is 2048.
//
// BatchCapacity is the maximum number of prompt tokens decoded in one call.
// When set to 0, the default value is 512.
//
// Threads is the number of decode threads. When set to 0, the llama.cpp
// default is used.
//
// PieceCacheSize is the number of token fragments memoized per model. When
// set to 0, the default value is 4096.
//
// IgnoreIntegrityCheck skips the model file check performed on load.
//
// Guard holds the safety budgets used by Instruct.
type Config struct {
	Log                  Logger
	ContextCapacity      int
	BatchCapacity        int
	Threads              int
	PieceCacheSize       int
	IgnoreIntegrityCheck bool
	CheckSHA             bool
	Guard                session.GuardConfig
}

type options struct {
	backend backend.Backend
}

// Option represents options for configuring Minicode.
type Option func(*options)

// WithBackend replaces the llama.cpp backend. When set, Init is not
// required.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// =============================================================================

// Minicode provides a concurrently safe api for a single local model.
type Minicode struct {
	cfg           Config
	log           Logger
	sess          *session.Session
	activeStreams atomic.Int32
	shutdown      sync.Mutex
	shutdownFlag  bool
}

// New constructs a Minicode value with no model loaded.
func New(cfg Config, opts ...Option) (*Minicode, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.backend == nil {
		llama, err := backend.NewLlama()
		if err != nil {
			return nil, fmt.Errorf("new: the Init() function has not been called: %w", err)
		}

		o.backend = llama
	}

	if cfg.Log == nil {
		cfg.Log = DiscardLogger
	}

	scfg := session.Config{
		Config: engine.Config{
			Log:                  cfg.Log,
			ContextCapacity:      cfg.ContextCapacity,
			BatchCapacity:        cfg.BatchCapacity,
			Threads:              cfg.Threads,
			IgnoreIntegrityCheck: cfg.IgnoreIntegrityCheck,
			CheckSHA:             cfg.CheckSHA,
		},
		PieceCacheSize: cfg.PieceCacheSize,
	}

	sess := session.New(o.backend, scfg)

	cfg.ContextCapacity = sess.Config().ContextCapacity
	cfg.BatchCapacity = sess.Config().BatchCapacity
	cfg.PieceCacheSize = sess.Config().PieceCacheSize

	m := Minicode{
		cfg:  cfg,
		log:  cfg.Log,
		sess: sess,
	}

	return &m, nil
}

// Config returns the configuration after defaults were applied.
func (m *Minicode) Config() Config {
	return m.cfg
}

// LoadModel loads the model at path, replacing the loaded model. It reports
// whether a model is loaded afterwards.
func (m *Minicode) LoadModel(path string) (loaded bool) {
	ctx := context.Background()

	defer m.recoverPanic(ctx, "load-model", func() { loaded = false })

	if err := m.acquire(); err != nil {
		m.log(ctx, "load-model", "ERROR", err)
		return false
	}
	defer m.release()

	if err := m.sess.Load(ctx, path); err != nil {
		m.log(ctx, "load-model", "ERROR", err, "model-file", path)
		return false
	}

	return true
}

// UnloadModel releases the loaded model. It does nothing when no model is
// loaded.
func (m *Minicode) UnloadModel() {
	ctx := context.Background()

	defer m.recoverPanic(ctx, "unload-model", nil)

	m.sess.Unload()
}

// IsLoaded reports whether a model is loaded.
func (m *Minicode) IsLoaded() bool {
	return m.sess.State() == session.StateLoaded
}

// ModelPath returns the file of the loaded model.
func (m *Minicode) ModelPath() string {
	return m.sess.ModelPath()
}

// ActiveStreams returns the number of calls currently running or waiting
// for the model.
func (m *Minicode) ActiveStreams() int {
	return int(m.activeStreams.Load())
}

// Generate runs a one-shot generation and returns the text. Top-k uses the
// default of 40. An empty string is returned on any failure.
func (m *Minicode) Generate(prompt string, maxTokens int, temperature float32, topP float32, repeatPenalty float32, seed int) (text string) {
	ctx := context.Background()

	defer m.recoverPanic(ctx, "generate", func() { text = "" })

	if err := m.acquire(); err != nil {
		m.log(ctx, "generate", "ERROR", err)
		return ""
	}
	defer m.release()

	req := session.Request{
		Prompt:    prompt,
		MaxTokens: maxTokens,
		Params: sampler.Params{
			Temperature:   temperature,
			TopP:          topP,
			RepeatPenalty: repeatPenalty,
			Seed:          seed,
		},
	}

	text, err := m.sess.Generate(ctx, req)
	if err != nil {
		m.log(ctx, "generate", "ERROR", err)
		return ""
	}

	return text
}

// GenerateStreaming runs a generation, handing each fragment to cb as it is
// produced. cb is polled for cancellation before each token. Failures end
// the stream and are logged.
func (m *Minicode) GenerateStreaming(prompt string, maxTokens int, temperature float32, topK int, topP float32, repeatPenalty float32, repeatLastN int, seed int, cb session.Callback) {
	ctx := context.Background()

	defer m.recoverPanic(ctx, "generate-streaming", nil)

	if err := m.acquire(); err != nil {
		m.log(ctx, "generate-streaming", "ERROR", err)
		return
	}
	defer m.release()

	req := session.Request{
		Prompt:    prompt,
		MaxTokens: maxTokens,
		Params: sampler.Params{
			Temperature:   temperature,
			TopK:          topK,
			TopP:          topP,
			RepeatPenalty: repeatPenalty,
			RepeatLastN:   repeatLastN,
			Seed:          seed,
		},
	}

	if _, err := m.sess.GenerateStream(ctx, req, cb); err != nil {
		m.log(ctx, "generate-streaming", "ERROR", err)
	}
}

// Shutdown waits for the running calls to finish, unloads the model and
// rejects every later call. When ctx has no deadline a 5 second one is used.
func (m *Minicode) Shutdown(ctx context.Context) error {
	if _, exists := ctx.Deadline(); !exists {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	m.shutdown.Lock()
	defer m.shutdown.Unlock()

	if m.shutdownFlag {
		return fmt.Errorf("shutdown: already shutdown")
	}

	for m.activeStreams.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown: cannot shutdown: %d active streams: %w", m.activeStreams.Load(), ctx.Err())

		case <-time.After(100 * time.Millisecond):
		}
	}

	m.shutdownFlag = true
	m.sess.Unload()

	return nil
}

func (m *Minicode) recoverPanic(ctx context.Context, op string, onPanic func()) {
	if rec := recover(); rec != nil {
		m.log(ctx, op, "status", "panic", "ERROR", rec)

		if onPanic != nil {
			onPanic()
		}
	}
}
