package backend

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// LogLevel controls the logging of the native library.
type LogLevel int

// Set of native log levels.
const (
	LogSilent LogLevel = iota + 1
	LogNormal
)

var (
	initOnce        sync.Once
	initErr         error
	libraryLocation string
)

// Load loads the llama.cpp shared libraries found at libPath and initializes
// the backend. It is safe to call more than once, only the first call does
// any work.
func Load(libPath string, logLevel LogLevel) error {
	initOnce.Do(func() {
		if libPath == "" {
			initErr = errors.New("load: library path is required")
			return
		}

		// Windows uses PATH for DLL discovery, Unix uses LD_LIBRARY_PATH.
		switch runtime.GOOS {
		case "windows":
			if v := os.Getenv("PATH"); !strings.Contains(v, libPath) {
				os.Setenv("PATH", fmt.Sprintf("%s;%s", libPath, v))
			}
		default:
			if v := os.Getenv("LD_LIBRARY_PATH"); !strings.Contains(v, libPath) {
				os.Setenv("LD_LIBRARY_PATH", fmt.Sprintf("%s:%s", libPath, v))
			}
		}

		if err := llama.Load(libPath); err != nil {
			initErr = fmt.Errorf("load: unable to load library: %w", err)
			return
		}

		llama.Init()

		switch logLevel {
		case LogNormal:
			llama.LogSet(llama.LogNormal)
		default:
			llama.LogSet(llama.LogSilent())
		}

		libraryLocation = libPath
	})

	return initErr
}

// LibraryLocation returns the path the native library was loaded from. It is
// empty until Load succeeds.
func LibraryLocation() string {
	return libraryLocation
}

// =============================================================================

// Llama implements Backend on top of llama.cpp.
type Llama struct{}

// NewLlama returns the llama.cpp backend. Load must have been called first.
func NewLlama() (*Llama, error) {
	if libraryLocation == "" {
		return nil, errors.New("new-llama: the Load() function has not been called")
	}

	return &Llama{}, nil
}

// LoadModel implements Backend.
func (*Llama) LoadModel(path string) (Model, error) {
	mparams := llama.ModelDefaultParams()

	mdl, err := llama.ModelLoadFromFile(path, mparams)
	if err != nil {
		return 0, fmt.Errorf("load-model: %w", err)
	}

	if mdl == 0 {
		return 0, fmt.Errorf("load-model: no model returned for %s", path)
	}

	return Model(mdl), nil
}

// NewContext implements Backend.
func (*Llama) NewContext(m Model, p ContextParams) (Context, error) {
	ctxParams := llama.ContextDefaultParams()
	ctxParams.NCtx = p.NCtx
	ctxParams.NBatch = p.NBatch
	ctxParams.NUbatch = p.NBatch

	if p.NThreads > 0 {
		ctxParams.NThreads = p.NThreads
		ctxParams.NThreadsBatch = p.NThreads
	}

	lctx, err := llama.InitFromModel(llama.Model(m), ctxParams)
	if err != nil {
		return 0, fmt.Errorf("new-context: %w", err)
	}

	if lctx == 0 {
		return 0, errors.New("new-context: no context returned")
	}

	return Context(lctx), nil
}

// FreeContext implements Backend.
func (*Llama) FreeContext(c Context) {
	lctx := llama.Context(c)

	llama.Synchronize(lctx)
	llama.Free(lctx)
}

// FreeModel implements Backend.
func (*Llama) FreeModel(m Model) {
	llama.ModelFree(llama.Model(m))
}

// Vocab implements Backend.
func (*Llama) Vocab(m Model) Vocab {
	return Vocab(llama.ModelGetVocab(llama.Model(m)))
}

// Tokenize implements Backend.
func (*Llama) Tokenize(v Vocab, text string, maxTokens int) ([]Token, error) {
	ltoks := llama.Tokenize(llama.Vocab(v), text, true, true)
	if len(text) > 0 && len(ltoks) == 0 {
		return nil, errors.New("tokenize: vocabulary rejected the input")
	}

	if len(ltoks) > maxTokens {
		return nil, fmt.Errorf("tokenize: %d tokens exceed capacity %d", len(ltoks), maxTokens)
	}

	tokens := make([]Token, len(ltoks))
	for i, t := range ltoks {
		tokens[i] = Token(t)
	}

	return tokens, nil
}

// TokenToPiece implements Backend. The native call reports the required size
// as a negative length when the buffer is too small, so the call is retried
// once with an exact buffer.
func (*Llama) TokenToPiece(v Vocab, t Token) []byte {
	buf := make([]byte, 64)

	n := llama.TokenToPiece(llama.Vocab(v), llama.Token(t), buf, 0, false)
	if n < 0 {
		buf = make([]byte, -n)
		n = llama.TokenToPiece(llama.Vocab(v), llama.Token(t), buf, 0, false)
	}

	if n <= 0 {
		return nil
	}

	return buf[:n]
}

// IsEOG implements Backend.
func (*Llama) IsEOG(v Vocab, t Token) bool {
	return llama.VocabIsEOG(llama.Vocab(v), llama.Token(t))
}

// Decode implements Backend. Positions are tracked by llama.cpp itself when
// the batch is created with BatchGetOne, so pos is not forwarded.
func (*Llama) Decode(c Context, tokens []Token, pos int) error {
	if len(tokens) == 0 {
		return nil
	}

	ltoks := make([]llama.Token, len(tokens))
	for i, t := range tokens {
		ltoks[i] = llama.Token(t)
	}

	batch := llama.BatchGetOne(ltoks)

	ret, err := llama.Decode(llama.Context(c), batch)
	if err != nil {
		return fmt.Errorf("decode: pos[%d] n[%d]: %w", pos, len(tokens), err)
	}

	if ret != 0 {
		return fmt.Errorf("decode: pos[%d] n[%d]: native code %d", pos, len(tokens), ret)
	}

	return nil
}

// ClearMemory implements Backend.
func (*Llama) ClearMemory(c Context) error {
	mem, err := llama.GetMemory(llama.Context(c))
	if err != nil {
		return fmt.Errorf("clear-memory: unable to get memory: %w", err)
	}

	llama.MemoryClear(mem, true)

	return nil
}

// NewSampler implements Backend.
func (*Llama) NewSampler(stages []Stage) (Sampler, error) {
	sampler := llama.SamplerChainInit(llama.SamplerChainDefaultParams())

	for _, st := range stages {
		switch st.Kind {
		case StageTemperature:
			llama.SamplerChainAdd(sampler, llama.SamplerInitTempExt(st.Temperature, 0, 1.0))

		case StageTopK:
			llama.SamplerChainAdd(sampler, llama.SamplerInitTopK(st.TopK))

		case StageTopP:
			llama.SamplerChainAdd(sampler, llama.SamplerInitTopP(st.TopP, 0))

		case StageDist:
			llama.SamplerChainAdd(sampler, llama.SamplerInitDist(st.Seed))

		default:
			llama.SamplerFree(sampler)
			return 0, fmt.Errorf("new-sampler: unknown stage %d", st.Kind)
		}
	}

	return Sampler(sampler), nil
}

// Sample implements Backend.
func (*Llama) Sample(s Sampler, c Context) Token {
	return Token(llama.SamplerSample(llama.Sampler(s), llama.Context(c), -1))
}

// FreeSampler implements Backend.
func (*Llama) FreeSampler(s Sampler) {
	llama.SamplerFree(llama.Sampler(s))
}
