package check

import (
	"fmt"

	"github.com/ardanlabs/minicode/sdk/minicode/backend"
)

// Run executes the check command.
func Run(modelFile string, checkSHA bool) error {
	sc, ok, err := backend.ReadSidecar(modelFile)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}

	if err := backend.CheckModel(modelFile, checkSHA); err != nil {
		return fmt.Errorf("check: %w", err)
	}

	if !ok {
		fmt.Printf("%s: present, no sidecar to compare against\n", modelFile)
		return nil
	}

	if checkSHA && sc.SHA256 != "" {
		fmt.Printf("%s: size %d and sha256 %s match\n", modelFile, sc.Size, sc.SHA256)
		return nil
	}

	fmt.Printf("%s: size %d matches\n", modelFile, sc.Size)

	return nil
}
