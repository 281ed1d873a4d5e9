package attach

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunDir(t *testing.T) {
	dir := RunDir("/tmp/file-transfer", "run-1")
	expected := filepath.Join("/tmp/file-transfer", "run-1")
	if dir != expected {
		t.Errorf("RunDir() = %q, want %q", dir, expected)
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\bob\notes.txt`, "notes.txt"},
		{"", "attachment"},
		{"..", "attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SafeName(tt.in); got != tt.want {
				t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStagePath(t *testing.T) {
	got := StagePath("/dl", "run-1", "../x.txt")
	expected := filepath.Join("/dl", "run-1", "x.txt")
	if got != expected {
		t.Errorf("StagePath() = %q, want %q", got, expected)
	}
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"document.pdf", "application/pdf"},
		{"image.png", "image/png"},
		{"unknown", "application/octet-stream"},
		{"file.xyz", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := DetectMimeType(tt.filename)
			// Some systems may have different MIME mappings
			if got == "" || strings.Contains(got, ";") {
				t.Errorf("DetectMimeType(%q) = %q", tt.filename, got)
			}
		})
	}
}

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		max     int64
		wantErr bool
	}{
		{"below", 99, 100, false},
		{"at limit", 100, 100, true},
		{"above", 101, 100, true},
		{"unlimited", 1 << 40, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(tt.size, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSize(%d, %d) error = %v, wantErr %v", tt.size, tt.max, err, tt.wantErr)
			}
		})
	}
}

func TestWriteFromAndRemove(t *testing.T) {
	dir := t.TempDir()
	dst := StagePath(dir, "run-1", "hello.txt")

	size, sum, err := WriteFrom(strings.NewReader("hello"), dst)
	if err != nil {
		t.Fatalf("WriteFrom() error = %v", err)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
	// sha256("hello")
	if sum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("checksum = %s", sum)
	}

	if err := Remove(dst); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("staged file still present")
	}
	if err := Remove(dst); err != nil {
		t.Errorf("Remove() on missing file error = %v", err)
	}
	if err := RemoveRunDir(dir, "run-1"); err != nil {
		t.Errorf("RemoveRunDir() error = %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteFromCleansUpOnError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "broken.bin")
	if _, _, err := WriteFrom(failingReader{}, dst); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("partial file left behind")
	}
}
