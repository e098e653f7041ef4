package backend

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrModelFile is returned when the model file is missing, is a directory,
// or does not match its sidecar.
var ErrModelFile = errors.New("model file invalid")

// Sidecar describes the expected size and digest of a model file. It is read
// from sha/<file> next to the model, the format written by git lfs pointers.
type Sidecar struct {
	SHA256 string
	Size   int64
}

// ReadSidecar reads the sidecar for the model file. The second return is
// false when no sidecar exists.
func ReadSidecar(modelFile string) (Sidecar, bool, error) {
	shaFile := filepath.Join(filepath.Dir(modelFile), "sha", filepath.Base(modelFile))

	f, err := os.Open(shaFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Sidecar{}, false, nil
		}
		return Sidecar{}, false, fmt.Errorf("read-sidecar: opening sha file: %w", err)
	}
	defer f.Close()

	var sc Sidecar

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "oid sha256:"):
			sc.SHA256 = strings.TrimPrefix(line, "oid sha256:")

		case strings.HasPrefix(line, "size "):
			size, err := strconv.ParseInt(strings.TrimPrefix(line, "size "), 10, 64)
			if err != nil {
				return Sidecar{}, false, fmt.Errorf("read-sidecar: parsing size: %w", err)
			}
			sc.Size = size
		}
	}

	if err := scanner.Err(); err != nil {
		return Sidecar{}, false, fmt.Errorf("read-sidecar: reading sha file: %w", err)
	}

	return sc, true, nil
}

// CheckModel validates the model file before it is handed to the library.
// The file must exist and be a regular file. When a sidecar exists the size
// must match and, if checkSHA is set, the sha256 digest as well.
func CheckModel(modelFile string, checkSHA bool) error {
	info, err := os.Stat(modelFile)
	if err != nil {
		return fmt.Errorf("check-model: %w: %w", ErrModelFile, err)
	}

	if info.IsDir() {
		return fmt.Errorf("check-model: %w: %s is a directory", ErrModelFile, modelFile)
	}

	sc, ok, err := ReadSidecar(modelFile)
	if err != nil {
		return fmt.Errorf("check-model: %w", err)
	}

	if !ok {
		return nil
	}

	if sc.Size > 0 && info.Size() != sc.Size {
		return fmt.Errorf("check-model: %w: size mismatch: expected %d, got %d", ErrModelFile, sc.Size, info.Size())
	}

	if !checkSHA || sc.SHA256 == "" {
		return nil
	}

	f, err := os.Open(modelFile)
	if err != nil {
		return fmt.Errorf("check-model: opening model file for sha check: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("check-model: computing sha256: %w", err)
	}

	if actual := hex.EncodeToString(h.Sum(nil)); actual != sc.SHA256 {
		return fmt.Errorf("check-model: %w: sha256 mismatch: expected %s, got %s", ErrModelFile, sc.SHA256, actual)
	}

	return nil
}
