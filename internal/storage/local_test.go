package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStore_SaveAndOpen(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()
	key := "7/2024-03-10/abc.wav"

	if err := s.Save(ctx, key, []byte("audio-data"), "audio/wav"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "audio-data" {
		t.Errorf("read back %q", data)
	}

	if !s.Exists(ctx, key) {
		t.Error("Exists = false after Save")
	}
}

func TestLocalStore_OpenMissing(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	_, err := s.Open(context.Background(), "nope/missing.wav")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) = %v, want ErrNotFound", err)
	}
}

func TestLocalStore_Delete(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()
	key := "1/2024-03-10/x.mp3"

	s.Save(ctx, key, []byte("x"), "audio/mpeg")
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists(ctx, key) {
		t.Error("blob still exists after Delete")
	}

	// Deleting a missing blob is not an error.
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestLocalStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()

	s.Save(ctx, "1/2024-03-10/a.wav", []byte("x"), "audio/wav")
	s.Save(ctx, "1/2024-03-10/b.wav", []byte("y"), "audio/wav")

	var tmps []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && filepath.Ext(path) == ".tmp" {
			tmps = append(tmps, path)
		}
		return nil
	})
	if len(tmps) != 0 {
		t.Errorf("temp files left behind: %v", tmps)
	}
}
