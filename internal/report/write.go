package report

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes text to path atomically (temp file in the same directory +
// rename), so an interrupted run never leaves a truncated artifact behind.
func WriteFile(path, text string) error {
	if path == "" {
		return nil
	}
	path = filepath.Clean(path)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("report %s: create temp: %w", path, err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.WriteString(text)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("report %s: write: %w", path, writeErr)
		}
		return fmt.Errorf("report %s: close: %w", path, closeErr)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("report %s: chmod: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("report %s: rename: %w", path, err)
	}
	return nil
}

// Paths names the two per-run artifacts. An empty path skips that artifact.
type Paths struct {
	Report  string
	Summary string
}

// WriteArtifacts writes the full report and the summary.
func WriteArtifacts(p Paths, r Rendered) error {
	if err := WriteFile(p.Report, r.FailureList); err != nil {
		return err
	}
	return WriteFile(p.Summary, r.Summary)
}
