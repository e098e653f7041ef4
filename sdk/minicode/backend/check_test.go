package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeModel(t *testing.T, data []byte, sidecar string) string {
	t.Helper()

	dir := t.TempDir()
	modelFile := filepath.Join(dir, "tiny.gguf")

	if err := os.WriteFile(modelFile, data, 0o644); err != nil {
		t.Fatalf("write model: %s", err)
	}

	if sidecar != "" {
		if err := os.MkdirAll(filepath.Join(dir, "sha"), 0o755); err != nil {
			t.Fatalf("mkdir sha: %s", err)
		}

		if err := os.WriteFile(filepath.Join(dir, "sha", "tiny.gguf"), []byte(sidecar), 0o644); err != nil {
			t.Fatalf("write sidecar: %s", err)
		}
	}

	return modelFile
}

func Test_CheckModelMissing(t *testing.T) {
	err := CheckModel(filepath.Join(t.TempDir(), "nope.gguf"), true)
	if !errors.Is(err, ErrModelFile) {
		t.Fatalf("expected ErrModelFile, got %v", err)
	}

	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist in the chain, got %v", err)
	}
}

func Test_CheckModelDirectory(t *testing.T) {
	if err := CheckModel(t.TempDir(), false); !errors.Is(err, ErrModelFile) {
		t.Fatalf("expected ErrModelFile, got %v", err)
	}
}

func Test_CheckModelNoSidecar(t *testing.T) {
	modelFile := writeModel(t, []byte("weights"), "")

	if err := CheckModel(modelFile, true); err != nil {
		t.Fatalf("should pass without a sidecar: %s", err)
	}
}

func Test_CheckModelSidecar(t *testing.T) {
	data := []byte("some model weights")
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	tests := []struct {
		name     string
		sidecar  string
		checkSHA bool
		fail     bool
	}{
		{
			name:     "match",
			sidecar:  fmt.Sprintf("version https://git-lfs.github.com/spec/v1\noid sha256:%s\nsize %d\n", digest, len(data)),
			checkSHA: true,
		},
		{
			name:    "size-mismatch",
			sidecar: fmt.Sprintf("oid sha256:%s\nsize %d\n", digest, len(data)+1),
			fail:    true,
		},
		{
			name:     "sha-mismatch",
			sidecar:  fmt.Sprintf("oid sha256:%064d\nsize %d\n", 0, len(data)),
			checkSHA: true,
			fail:     true,
		},
		{
			name:    "sha-mismatch-unchecked",
			sidecar: fmt.Sprintf("oid sha256:%064d\nsize %d\n", 0, len(data)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modelFile := writeModel(t, data, tt.sidecar)

			err := CheckModel(modelFile, tt.checkSHA)

			switch {
			case tt.fail && !errors.Is(err, ErrModelFile):
				t.Fatalf("expected ErrModelFile, got %v", err)
			case !tt.fail && err != nil:
				t.Fatalf("unexpected error: %s", err)
			}
		})
	}
}

func Test_ReadSidecarBadSize(t *testing.T) {
	modelFile := writeModel(t, []byte("x"), "size abc\n")

	if _, _, err := ReadSidecar(modelFile); err == nil {
		t.Fatal("expected a parse error")
	}
}
