package writebuffer_test

import (
	"io"
	"sync"
	"testing"

	"github.com/calvinalkan/imgcache/writebuffer"
)

func Test_Buffer_Reader_Yields_Exact_Bytes(t *testing.T) {
	t.Parallel()

	b := writebuffer.New("k", []byte("hello"), "text/plain")

	got, err := io.ReadAll(b.NewReader())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}

	if b.UsedBytes() != 5 {
		t.Fatalf("UsedBytes() = %d, want 5", b.UsedBytes())
	}

	if b.ContentType() != "text/plain" {
		t.Fatalf("ContentType() = %q", b.ContentType())
	}
}

func Test_Buffer_Is_Immutable_After_Construction(t *testing.T) {
	t.Parallel()

	src := []byte("original")
	b := writebuffer.New("k", src, "image/png")

	src[0] = 'X' // mutate the caller's slice after handing it to New

	got, err := io.ReadAll(b.NewReader())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "original" {
		t.Fatalf("got %q, want %q (buffer should own a private copy)", got, "original")
	}
}

func Test_Buffer_Readers_Are_Independent_Cursors(t *testing.T) {
	t.Parallel()

	b := writebuffer.New("k", []byte("abcdef"), "text/plain")

	r1 := b.NewReader()
	r2 := b.NewReader()

	buf1 := make([]byte, 3)

	if _, err := io.ReadFull(r1, buf1); err != nil {
		t.Fatalf("r1 read: %v", err)
	}

	if string(buf1) != "abc" {
		t.Fatalf("r1 first 3 bytes = %q, want abc", buf1)
	}

	got2, err := io.ReadAll(r2)
	if err != nil {
		t.Fatalf("r2 read: %v", err)
	}

	if string(got2) != "abcdef" {
		t.Fatalf("r2 full read = %q, want abcdef (independent cursor)", got2)
	}
}

func Test_Buffer_Concurrent_Readers_Are_Safe(t *testing.T) {
	t.Parallel()

	b := writebuffer.New("k", []byte("concurrent-read-payload"), "application/octet-stream")

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			got, err := io.ReadAll(b.NewReader())
			if err != nil {
				t.Errorf("read: %v", err)
				return
			}

			if string(got) != "concurrent-read-payload" {
				t.Errorf("got %q", got)
			}
		}()
	}

	wg.Wait()
}
