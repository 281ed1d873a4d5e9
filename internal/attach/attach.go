// Package attach stages downloaded attachment files on local disk.
// Files live under download_dir/<run_id>/<filename> and are removed once posted.
package attach

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Staged describes a file written to the staging area.
type Staged struct {
	Path      string
	FileName  string
	MimeType  string
	SizeBytes int64
	Checksum  string
}

// RunDir returns the staging directory for one run.
func RunDir(downloadDir, runID string) string {
	return filepath.Join(downloadDir, runID)
}

// SafeName reduces a file name from the archive to a single path element.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "attachment"
	}
	return name
}

// StagePath returns where fileName is staged for a run.
func StagePath(downloadDir, runID, fileName string) string {
	return filepath.Join(RunDir(downloadDir, runID), SafeName(fileName))
}

// EnsureRunDir creates the run's staging directory if it doesn't exist.
func EnsureRunDir(downloadDir, runID string) error {
	return os.MkdirAll(RunDir(downloadDir, runID), 0o755)
}

// WriteFrom copies src into dst, returning size and sha256 checksum.
// A partially written dst is removed on failure.
func WriteFrom(src io.Reader, dst string) (size int64, checksum string, err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	dstFile, err := os.Create(dst)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create staged file: %w", err)
	}

	hasher := sha256.New()
	size, err = io.Copy(io.MultiWriter(dstFile, hasher), src)
	closeErr := dstFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return 0, "", fmt.Errorf("failed to copy file: %w", err)
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// DetectMimeType attempts to detect MIME type from filename extension.
// Falls back to application/octet-stream if unknown.
func DetectMimeType(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return "application/octet-stream"
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}

	// Strip parameters like charset
	if idx := strings.IndexByte(mimeType, ';'); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	return mimeType
}

// ValidateSize checks a size against the delivery limit. The limit itself is refused.
func ValidateSize(size, maxBytes int64) error {
	if maxBytes <= 0 {
		return nil // No limit
	}
	if size >= maxBytes {
		return fmt.Errorf("attachment size %d bytes reaches limit of %d bytes", size, maxBytes)
	}
	return nil
}

// Remove deletes a staged file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staged file: %w", err)
	}
	return nil
}

// RemoveRunDir removes the run's staging directory if it is empty.
func RemoveRunDir(downloadDir, runID string) error {
	err := os.Remove(RunDir(downloadDir, runID))
	if err != nil && !os.IsNotExist(err) {
		entries, readErr := os.ReadDir(RunDir(downloadDir, runID))
		if readErr == nil && len(entries) > 0 {
			return nil
		}
		return fmt.Errorf("failed to delete staging directory: %w", err)
	}
	return nil
}
