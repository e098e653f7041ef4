// Package backups provides support for keeping copies of files before they
// are rewritten by the model.
package backups

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const timeFormat = "20060102150405"

// ErrNoBackups is returned by Latest when a file has no backups.
var ErrNoBackups = errors.New("no backups found")

// Dir returns the backup folder, $HOME/.minicode/backups unless override is
// set.
func Dir(override string) string {
	if override != "" {
		return override
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".minicode", "backups")
	}

	return filepath.Join(home, ".minicode", "backups")
}

// Name returns the backup name for file taken at now, in the form
// <base>_backup_<yyyyMMddHHmmss>.<ext>. Files without an extension get .bak.
func Name(file string, now time.Time) string {
	base, ext := split(filepath.Base(file))
	if ext == "" {
		ext = "bak"
	}

	return fmt.Sprintf("%s_backup_%s.%s", base, now.Format(timeFormat), ext)
}

// Create writes content as a new backup of file in dir and returns its path.
func Create(dir string, file string, content []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create-backup: creating folder: %w", err)
	}

	path := filepath.Join(dir, Name(file, now))

	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("create-backup: %w", err)
	}

	return path, nil
}

// List returns the backups of file in dir, newest first.
func List(dir string, file string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list-backups: reading folder: %w", err)
	}

	base, _ := split(filepath.Base(file))
	prefix := base + "_backup_"

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	// The timestamp sorts lexically.
	slices.Sort(paths)
	slices.Reverse(paths)

	return paths, nil
}

// Latest returns the newest backup of file in dir.
func Latest(dir string, file string) (string, error) {
	paths, err := List(dir, file)
	if err != nil {
		return "", err
	}

	if len(paths) == 0 {
		return "", fmt.Errorf("latest-backup: %s: %w", filepath.Base(file), ErrNoBackups)
	}

	return paths[0], nil
}

// Restore replaces target with the content of the backup.
func Restore(backup string, target string) error {
	content, err := os.ReadFile(backup)
	if err != nil {
		return fmt.Errorf("restore-backup: reading backup: %w", err)
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(target); err == nil {
		perm = info.Mode().Perm()
	}

	if err := os.WriteFile(target, content, perm); err != nil {
		return fmt.Errorf("restore-backup: %w", err)
	}

	return nil
}

func split(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return name, ""
	}

	return strings.TrimSuffix(name, ext), ext[1:]
}
