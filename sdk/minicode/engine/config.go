package engine

import "context"

const (
	defContextCapacity = 2048
	defBatchCapacity   = 512
)

// Logger provides a function for logging messages from different APIs.
type Logger func(ctx context.Context, msg string, args ...any)

// Config represents the engine level configuration. The defaults are used
// when these values are set to 0.
//
// ContextCapacity is the maximum number of tokens the attention memory can
// hold for one generation, prompt and output together.
// When set to 0, the default value is 2048.
//
// BatchCapacity is the maximum number of tokens submitted in a single decode
// call. Prompts longer than this are prefilled in consecutive chunks. It is
// never larger than ContextCapacity.
// When set to 0, the default value is 512.
//
// Threads is the number of threads used for decoding. When set to 0, the
// library default is used.
//
// IgnoreIntegrityCheck skips the model file check performed before loading.
//
// CheckSHA computes the sha256 of the model file when a sidecar is present.
// This reads the whole file and is slow for large models.
type Config struct {
	Log                  Logger
	ContextCapacity      int
	BatchCapacity        int
	Threads              int
	IgnoreIntegrityCheck bool
	CheckSHA             bool
}

func adjustConfig(cfg Config) Config {
	if cfg.ContextCapacity <= 0 {
		cfg.ContextCapacity = defContextCapacity
	}

	if cfg.BatchCapacity <= 0 {
		cfg.BatchCapacity = defBatchCapacity
	}

	if cfg.Threads < 0 {
		cfg.Threads = 0
	}

	// A single decode call can never hold more than the whole context.
	if cfg.BatchCapacity > cfg.ContextCapacity {
		cfg.BatchCapacity = cfg.ContextCapacity
	}

	if cfg.Log == nil {
		cfg.Log = func(ctx context.Context, msg string, args ...any) {}
	}

	return cfg
}
