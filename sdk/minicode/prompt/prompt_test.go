package prompt_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ardanlabs/minicode/sdk/minicode/prompt"
)

func prefix(instruction string) string {
	return prompt.SystemPrompt + "\n\nInstruction: " + instruction + "\n\nCurrent file content:\n"
}

func Test_Build(t *testing.T) {
	content := "package main\n\nfunc main() {}\n"

	got, err := prompt.Build("add a comment", content)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	if exp := prefix("add a comment") + content; got != exp {
		t.Fatalf("prompt mismatch\ngot:[%s]\nexp:[%s]", got, exp)
	}
}

func Test_BuildTruncates(t *testing.T) {
	content := strings.Repeat("x", 5000)

	got, err := prompt.Build("rename x", content)
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	if n := utf8.RuneCountInString(got); n != 2000 {
		t.Fatalf("got %d characters, exp 2000", n)
	}

	if !strings.HasPrefix(got, prefix("rename x")+"xxx") {
		t.Fatal("the fixed part should be kept")
	}

	if !strings.HasSuffix(got, "x\n...") {
		t.Fatalf("expected the truncation marker, got suffix %q", got[len(got)-8:])
	}
}

func Test_BuildTruncatesRunes(t *testing.T) {
	content := strings.Repeat("é", 100)

	got, err := prompt.Build("go", content, prompt.WithSystemPrompt("rules"), prompt.WithMaxInputChars(80))
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	if !utf8.ValidString(got) {
		t.Fatal("truncation should not split a character")
	}

	if n := utf8.RuneCountInString(got); n != 80 {
		t.Fatalf("got %d characters, exp 80", n)
	}
}

func Test_BuildTooLong(t *testing.T) {
	_, err := prompt.Build(strings.Repeat("do ", 1000), "package main")
	if !errors.Is(err, prompt.ErrInputTooLong) {
		t.Fatalf("expected ErrInputTooLong, got %v", err)
	}
}

func Test_BuildTemplate(t *testing.T) {
	got, err := prompt.Build("fix", "code", prompt.WithTemplate("{{ instruction }}|{{ content }}"))
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	if got != "fix|code" {
		t.Fatalf("got %q", got)
	}

	if _, err := prompt.Build("fix", "code", prompt.WithTemplate("{{ instruction ")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func Test_IsTooComplex(t *testing.T) {
	tests := []struct {
		output string
		exp    bool
	}{
		{output: "ERROR_TOO_COMPLEX", exp: true},
		{output: "  ERROR_TOO_COMPLEX\n", exp: true},
		{output: "Sorry: ERROR_TOO_COMPLEX", exp: true},
		{output: "\n\nERROR_TOO_COMPLEX\n\n", exp: true},
		{output: "package main\n// ERROR_TOO_COMPLEX\nfunc main() {}", exp: false},
		{output: "package main", exp: false},
		{output: "", exp: false},
	}

	for _, tt := range tests {
		if got := prompt.IsTooComplex(tt.output); got != tt.exp {
			t.Fatalf("output %q: got %v, exp %v", tt.output, got, tt.exp)
		}
	}
}

func Test_CheckFileSize(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{name: "empty", content: ""},
		{name: "at-char-limit", content: strings.Repeat("x", prompt.MaxFileChars)},
		{name: "over-char-limit", content: strings.Repeat("x", prompt.MaxFileChars+1), err: prompt.ErrFileTooLarge},
		{name: "multibyte-at-limit", content: strings.Repeat("é", prompt.MaxFileChars)},
		{name: "below-line-limit", content: strings.Repeat("\n", prompt.MaxFileLines-1)},
		{name: "at-line-limit", content: strings.Repeat("\n", prompt.MaxFileLines), err: prompt.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := prompt.CheckFileSize(tt.content); !errors.Is(err, tt.err) {
				t.Fatalf("got error %v, exp %v", err, tt.err)
			}
		})
	}
}
