package imgcache

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/calvinalkan/imgcache/cleanup"
	"github.com/calvinalkan/imgcache/config"
	"github.com/calvinalkan/imgcache/fs"
)

// lockedThenOpenFS simulates a file that is locked by another writer for
// the first few Open attempts, then becomes readable.
type lockedThenOpenFS struct {
	fs.FS

	attemptsBeforeSuccess int32
	opens                 atomic.Int32
	contents              []byte
}

func (l *lockedThenOpenFS) Stat(path string) (os.FileInfo, error) {
	return statStub{}, nil
}

func (l *lockedThenOpenFS) Open(path string) (fs.File, error) {
	n := l.opens.Add(1)
	if n <= l.attemptsBeforeSuccess {
		return nil, &os.PathError{Op: "open", Path: path, Err: syscall.EAGAIN}
	}

	return fakeFile{Reader: bytes.NewReader(l.contents)}, nil
}

type statStub struct{ os.FileInfo }

func (statStub) Name() string       { return "x" }
func (statStub) Size() int64        { return 0 }
func (statStub) Mode() os.FileMode  { return 0 }
func (statStub) ModTime() time.Time { return time.Time{} }
func (statStub) IsDir() bool        { return false }
func (statStub) Sys() any           { return nil }

type fakeFile struct {
	*bytes.Reader
}

func (fakeFile) Close() error                { return nil }
func (fakeFile) Write(p []byte) (int, error) { return 0, os.ErrInvalid }
func (fakeFile) Fd() uintptr                 { return 0 }
func (fakeFile) Stat() (os.FileInfo, error)  { return statStub{}, nil }

func Test_ProbeWithRetry_Succeeds_After_Transient_Lock(t *testing.T) {
	t.Parallel()

	fake := &lockedThenOpenFS{attemptsBeforeSuccess: 3, contents: []byte("hello")}

	cfg := config.DefaultConfig()
	cfg.WaitForIdenticalDiskWritesMS = 2000

	c := New(cfg, cleanup.NewSHA256PathBuilder("/root"), cleanup.NewInMemoryManager(0, nil), WithFS(fake))

	entry := c.paths.Derive([]byte("k"))

	stream, detail, err := c.probeWithRetry(context.Background(), entry)
	if err != nil {
		t.Fatalf("probeWithRetry: %v", err)
	}

	if detail != ContendedDiskHit {
		t.Fatalf("detail = %v, want ContendedDiskHit", detail)
	}

	got, _ := io.ReadAll(stream)
	if string(got) != "hello" {
		t.Fatalf("stream = %q, want hello", got)
	}

	if fake.opens.Load() != 4 {
		t.Fatalf("opens = %d, want 4 (3 locked + 1 success)", fake.opens.Load())
	}
}

func Test_ProbeWithRetry_Gives_Up_After_Timeout(t *testing.T) {
	t.Parallel()

	fake := &lockedThenOpenFS{attemptsBeforeSuccess: 1_000_000, contents: []byte("hello")}

	cfg := config.DefaultConfig()
	cfg.WaitForIdenticalDiskWritesMS = 40

	c := New(cfg, cleanup.NewSHA256PathBuilder("/root"), cleanup.NewInMemoryManager(0, nil), WithFS(fake))

	entry := c.paths.Derive([]byte("k"))

	stream, _, err := c.probeWithRetry(context.Background(), entry)
	if err != nil {
		t.Fatalf("probeWithRetry: %v", err)
	}

	if stream != nil {
		t.Fatal("expected a nil stream after the retry loop times out")
	}
}
