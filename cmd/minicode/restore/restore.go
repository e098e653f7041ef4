package restore

import (
	"fmt"

	"github.com/ardanlabs/minicode/sdk/tools/backups"
)

// Run executes the restore command.
func Run(file string, backupDir string, list bool) error {
	dir := backups.Dir(backupDir)

	if list {
		paths, err := backups.List(dir, file)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}

		for _, p := range paths {
			fmt.Println(p)
		}

		return nil
	}

	latest, err := backups.Latest(dir, file)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	if err := backups.Restore(latest, file); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	fmt.Printf("%s restored from %s\n", file, latest)

	return nil
}
