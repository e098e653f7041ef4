// Package backend defines the contract with the model-loading library and
// provides the llama.cpp implementation of that contract via yzma.
//
// The handles declared here are opaque. A zero handle means "no handle" and
// is never passed back into the library by the packages that consume this
// contract.
package backend

// Model is an opaque handle to loaded weights and their vocabulary.
type Model uintptr

// Context is an opaque handle to the decode state of a model.
type Context uintptr

// Vocab is an opaque handle to the vocabulary owned by a model.
type Vocab uintptr

// Sampler is an opaque handle to a sampler chain.
type Sampler uintptr

// Token is a vocabulary id. It is only meaningful relative to the vocabulary
// that produced it.
type Token int32

// DefaultSeed asks the library to pick a random seed for the distribution
// stage.
const DefaultSeed uint32 = 0xFFFFFFFF

// =============================================================================

// ContextParams configures a decode context.
//
// NCtx is the capacity of the attention memory in tokens.
//
// NBatch is the maximum number of tokens accepted by a single decode call.
//
// NThreads is the number of threads used for decoding. Zero keeps the
// library default.
type ContextParams struct {
	NCtx     uint32
	NBatch   uint32
	NThreads int32
}

// StageKind identifies one stage of a sampler chain.
type StageKind int

// Set of sampler stages understood by a backend.
const (
	StageTemperature StageKind = iota + 1
	StageTopK
	StageTopP
	StageDist
)

func (k StageKind) String() string {
	switch k {
	case StageTemperature:
		return "temperature"
	case StageTopK:
		return "top-k"
	case StageTopP:
		return "top-p"
	case StageDist:
		return "dist"
	}

	return "unknown"
}

// Stage describes one stage of a sampler chain. Only the field that matches
// Kind is read.
type Stage struct {
	Kind        StageKind
	Temperature float32
	TopK        int32
	TopP        float32
	Seed        uint32
}

// =============================================================================

// Backend is the set of primitive operations the session manager needs from
// the model-loading library. Implementations are not required to be safe for
// concurrent use on the same context.
type Backend interface {
	// LoadModel loads weights from path.
	LoadModel(path string) (Model, error)

	// NewContext creates a decode context tied to the model.
	NewContext(m Model, p ContextParams) (Context, error)

	// FreeContext releases a context. It must be called before the model
	// the context was created from is freed.
	FreeContext(c Context)

	// FreeModel releases a model.
	FreeModel(m Model)

	// Vocab returns the vocabulary owned by the model.
	Vocab(m Model) Vocab

	// Tokenize converts text into at most maxTokens tokens. An error is
	// returned when the vocabulary rejects the input or the result does
	// not fit.
	Tokenize(v Vocab, text string, maxTokens int) ([]Token, error)

	// TokenToPiece returns the bytes of a single token. The result may be
	// empty or a partial UTF-8 sequence.
	TokenToPiece(v Vocab, t Token) []byte

	// IsEOG reports whether the token ends generation.
	IsEOG(v Vocab, t Token) bool

	// Decode feeds the tokens, at the given starting position, through the
	// model. The slice is never longer than the context batch size.
	Decode(c Context, tokens []Token, pos int) error

	// ClearMemory clears the attention memory of the context.
	ClearMemory(c Context) error

	// NewSampler builds a sampler chain from the stages in order.
	NewSampler(stages []Stage) (Sampler, error)

	// Sample draws the next token from the context's last logits.
	Sample(s Sampler, c Context) Token

	// FreeSampler releases a sampler chain.
	FreeSampler(s Sampler)
}
