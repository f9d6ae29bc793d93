package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	local, err := NewLocal(filepath.Join(t.TempDir(), "downloads"))
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	if err := local.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir returned error: %v", err)
	}
	return local
}

func TestOpenDetectsContentType(t *testing.T) {
	local := newLocal(t)
	path := filepath.Join(local.Dir(), "notes.txt")
	body := "plain notes about the download\n"
	if err := os.WriteFile(path, []byte(body), 0o640); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	file, err := local.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer file.Close()

	if file.Name != "notes.txt" {
		t.Fatalf("Name = %q", file.Name)
	}
	if file.Size != int64(len(body)) {
		t.Fatalf("Size = %d, want %d", file.Size, len(body))
	}
	if !strings.HasPrefix(file.ContentType, "text/plain") {
		t.Fatalf("ContentType = %q, want text/plain", file.ContentType)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != body {
		t.Fatalf("content was not rewound after detection: %q", data)
	}
}

func TestOpenRejectsOutsidePath(t *testing.T) {
	local := newLocal(t)
	outside := filepath.Join(filepath.Dir(local.Dir()), "secret.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o640); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := local.Open(outside); !errors.Is(err, ErrOutsideBaseDir) {
		t.Fatalf("expected ErrOutsideBaseDir, got %v", err)
	}
	if err := local.Remove(outside); !errors.Is(err, ErrOutsideBaseDir) {
		t.Fatalf("expected ErrOutsideBaseDir from Remove, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	local := newLocal(t)
	path := filepath.Join(local.Dir(), "song.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o640); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if err := local.Remove(path); err != nil {
		t.Fatalf("first Remove returned error: %v", err)
	}
	if err := local.Remove(path); err != nil {
		t.Fatalf("second Remove returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err=%v", err)
	}
}

func TestRemoveAfter(t *testing.T) {
	local := newLocal(t)
	path := filepath.Join(local.Dir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o640); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	done := make(chan error, 1)
	local.RemoveAfter(path, 10*time.Millisecond, func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RemoveAfter reported error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RemoveAfter did not fire")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err=%v", err)
	}
}
