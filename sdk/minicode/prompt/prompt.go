// Package prompt builds the instruction prompts sent to the code writing
// model and interprets its refusal marker.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/nikolalohinski/gonja/v2"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/loaders"
)

// TooComplex is the output the model is told to produce when it can't do
// the task.
const TooComplex = "ERROR_TOO_COMPLEX"

// SystemPrompt is the default set of rules given to the model.
const SystemPrompt = `You are Minicode, an offline AI codewriter.

Rules:
Output ONLY full valid file content.
No explanations.
No markdown.
No commentary.

Work on ONE file only.
Do not modify architecture unless explicitly requested.
Do not add extra features.
Do not refactor unless requested.

If task is unclear or too complex:
Output EXACTLY: ` + TooComplex + `

The token ` + TooComplex + ` must never appear inside valid code.`

// DefaultTemplate renders the system prompt, the instruction and the file
// being edited. The file content must come last since it is the part that
// gets truncated.
const DefaultTemplate = `{{ system }}

Instruction: {{ instruction }}

Current file content:
{{ content }}`

const (
	defMaxInputChars = 2000
	truncateMarker   = "\n..."
)

// Limits past which a file is refused before any generation.
const (
	MaxFileChars = 15000
	MaxFileLines = 600
)

// Set of errors returned by the package.
var (
	ErrInputTooLong = errors.New("input too long")
	ErrFileTooLarge = errors.New("file too large")
)

func init() {
	gonja.DefaultLoader = &noFSLoader{}
}

// =============================================================================

type options struct {
	maxInputChars int
	system        string
	template      string
}

// Option represents a functional option for building a prompt.
type Option func(*options)

// WithMaxInputChars sets the maximum number of characters of the rendered
// prompt. The default is 2000.
func WithMaxInputChars(n int) Option {
	return func(o *options) {
		o.maxInputChars = n
	}
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(system string) Option {
	return func(o *options) {
		o.system = system
	}
}

// WithTemplate replaces the default template. The template has access to the
// system, instruction and content variables.
func WithTemplate(template string) Option {
	return func(o *options) {
		o.template = template
	}
}

// =============================================================================

// Build renders the prompt for the instruction and the current file content.
// When the prompt exceeds the input budget the file content is truncated and
// marked with a trailing "\n...". ErrInputTooLong is returned when the prompt
// is over budget even with no file content.
func Build(instruction string, fileContent string, opts ...Option) (string, error) {
	o := options{
		maxInputChars: defMaxInputChars,
		system:        SystemPrompt,
		template:      DefaultTemplate,
	}

	for _, opt := range opts {
		opt(&o)
	}

	tpl, err := gonja.FromString(o.template)
	if err != nil {
		return "", fmt.Errorf("build: failed to parse template: %w", err)
	}

	render := func(content string) (string, error) {
		data := exec.NewContext(map[string]any{
			"system":      o.system,
			"instruction": instruction,
			"content":     content,
		})

		s, err := tpl.ExecuteToString(data)
		if err != nil {
			return "", fmt.Errorf("build: failed to execute template: %w", err)
		}

		return s, nil
	}

	full, err := render(fileContent)
	if err != nil {
		return "", err
	}

	if utf8.RuneCountInString(full) <= o.maxInputChars {
		return full, nil
	}

	fixed, err := render("")
	if err != nil {
		return "", err
	}

	room := o.maxInputChars - utf8.RuneCountInString(fixed) - utf8.RuneCountInString(truncateMarker)
	if room < 0 {
		return "", fmt.Errorf("build: fixed part is %d characters, budget is %d: %w", utf8.RuneCountInString(fixed), o.maxInputChars, ErrInputTooLong)
	}

	truncated, err := render(takeRunes(fileContent, room) + truncateMarker)
	if err != nil {
		return "", err
	}

	return truncated, nil
}

// CheckFileSize returns ErrFileTooLarge when content has more than
// MaxFileChars characters or at least MaxFileLines line breaks.
func CheckFileSize(content string) error {
	if n := utf8.RuneCountInString(content); n > MaxFileChars {
		return fmt.Errorf("check-file-size: %d characters, limit is %d: %w", n, MaxFileChars, ErrFileTooLarge)
	}

	if n := strings.Count(content, "\n"); n >= MaxFileLines {
		return fmt.Errorf("check-file-size: %d lines, limit is %d: %w", n, MaxFileLines, ErrFileTooLarge)
	}

	return nil
}

// IsTooComplex reports whether the output is the model's refusal: the marker
// on its own, or the marker within an output of at most one non-blank line.
func IsTooComplex(output string) bool {
	output = strings.TrimSpace(output)

	if output == TooComplex {
		return true
	}

	if !strings.Contains(output, TooComplex) {
		return false
	}

	var lines int
	for line := range strings.Lines(output) {
		if strings.TrimSpace(line) != "" {
			lines++
		}
	}

	return lines <= 1
}

func takeRunes(s string, n int) string {
	var i int
	for idx := range s {
		if i == n {
			return s[:idx]
		}
		i++
	}

	return s
}

// =============================================================================

type noFSLoader struct{}

func (nl *noFSLoader) Read(path string) (io.Reader, error) {
	return nil, errors.New("no-fs-loader-read: filesystem access disabled")
}

func (nl *noFSLoader) Resolve(path string) (string, error) {
	return "", errors.New("no-fs-loader-resolve: filesystem access disabled")
}

func (nl *noFSLoader) Inherit(from string) (loaders.Loader, error) {
	return nil, errors.New("no-fs-loader-inherit: filesystem access disabled")
}
