package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
)

// Files places artifacts on disk: in-flight images under the temp directory,
// finished ones under the output directory. Promotion renames when both
// directories share a filesystem and copies otherwise.
type Files struct {
	tempDir   string
	outputDir string
}

// NewFiles creates a Files store over the given directories.
func NewFiles(tempDir, outputDir string) *Files {
	return &Files{tempDir: tempDir, outputDir: outputDir}
}

// WriteTemp stores an in-flight artifact and returns its path.
func (f *Files) WriteTemp(executionID uuid.UUID, mappingID string, format domain.OutputFormat, data []byte) (string, error) {
	dir := filepath.Join(f.tempDir, executionID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	path := filepath.Join(dir, artifactName(mappingID, format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write temp artifact: %w", err)
	}

	return path, nil
}

// Promote moves a finished artifact into the output directory and returns
// its final path. The execution's directory carries over from the temp
// layout so artifacts from different executions never share a path.
func (f *Files) Promote(tempPath string) (string, error) {
	executionDir := filepath.Base(filepath.Dir(tempPath))
	dir := filepath.Join(f.outputDir, executionDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	finalPath := filepath.Join(dir, filepath.Base(tempPath))
	if err := os.Rename(tempPath, finalPath); err != nil {
		// Rename fails across filesystems; fall back to copy and remove.
		if copyErr := copyFile(tempPath, finalPath); copyErr != nil {
			return "", fmt.Errorf("failed to promote artifact: %w", errors.Join(err, copyErr))
		}
		_ = os.Remove(tempPath)
	}

	return finalPath, nil
}

// CleanupTemp removes an execution's temp directory and everything in it.
func (f *Files) CleanupTemp(executionID uuid.UUID) error {
	return os.RemoveAll(filepath.Join(f.tempDir, executionID.String()))
}

func artifactName(mappingID string, format domain.OutputFormat) string {
	ext := "png"
	if format == domain.FormatJPEG {
		ext = "jpg"
	}
	return fmt.Sprintf("%s.%s", mappingID, ext)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
