package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.log")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("initial\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if _, err := rw.Write([]byte("appended\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	rw.Close()

	content, _ := os.ReadFile(path)
	if string(content) != "initial\nappended\n" {
		t.Errorf("content = %q", content)
	}
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	chunk := []byte(strings.Repeat("x", 600*1024))
	for i := 0; i < 4; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected at most 2 backups, found %s", path+".3")
	}
}

func TestRotatingWriterClosed(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "test.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	rw.Close()

	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("expected error writing to a closed writer")
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestRotatingWriterCompresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	chunk := []byte(strings.Repeat("x", 600*1024))
	for i := 0; i < 2; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	// Compression runs in the background.
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, gzErr := os.Stat(path + ".1.gz")
		_, plainErr := os.Stat(path + ".1")
		if gzErr == nil && os.IsNotExist(plainErr) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("rotated file not compressed (gz: %v, plain: %v)", gzErr, plainErr)
		}
		time.Sleep(10 * time.Millisecond)
	}

	f, err := os.Open(path + ".1.gz")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading compressed backup failed: %v", err)
	}
	if len(data) != len(chunk) {
		t.Errorf("decompressed %d bytes, want %d", len(data), len(chunk))
	}
}
