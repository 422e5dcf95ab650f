package cleanup_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/imgcache/cleanup"
	"github.com/google/go-cmp/cmp"
)

func Test_SHA256PathBuilder_Is_Deterministic(t *testing.T) {
	t.Parallel()

	b := cleanup.NewSHA256PathBuilder("/root")

	e1 := b.Derive([]byte("hello"))
	e2 := b.Derive([]byte("hello"))

	if diff := cmp.Diff(e1, e2); diff != "" {
		t.Fatalf("Derive is not deterministic (-first +second):\n%s", diff)
	}
}

func Test_SHA256PathBuilder_Different_Keys_Differ(t *testing.T) {
	t.Parallel()

	b := cleanup.NewSHA256PathBuilder("/root")

	e1 := b.Derive([]byte("a"))
	e2 := b.Derive([]byte("b"))

	if e1.StringKey == e2.StringKey {
		t.Fatal("distinct keys produced the same string key")
	}

	if e1.PhysicalPath == e2.PhysicalPath {
		t.Fatal("distinct keys produced the same physical path")
	}
}

func Test_SHA256PathBuilder_Fans_Out_Two_Levels(t *testing.T) {
	t.Parallel()

	b := cleanup.NewSHA256PathBuilder("/root")

	e := b.Derive([]byte("hello"))

	want := filepath.Join("/root", e.StringKey[0:2], e.StringKey[2:4], e.StringKey)
	if e.PhysicalPath != want {
		t.Fatalf("PhysicalPath = %q, want %q", e.PhysicalPath, want)
	}
}
