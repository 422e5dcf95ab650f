package fs_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/imgcache/fs"
)

func Test_Real_OpenFile_Writes_And_Reads_Back(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	r := fs.NewReal()

	f, err := r.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	if _, err := f.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := r.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if info.Size() != 2 {
		t.Fatalf("size = %d, want 2", info.Size())
	}
}

func Test_Real_Stat_NotExist(t *testing.T) {
	t.Parallel()

	r := fs.NewReal()

	_, err := r.Stat(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func Test_Real_Rename_Moves_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	r := fs.NewReal()

	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := r.Rename(src, dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := r.Stat(dst); err != nil {
		t.Fatalf("Stat(dst): %v", err)
	}

	if _, err := r.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Stat(src) err = %v, want os.ErrNotExist", err)
	}
}
