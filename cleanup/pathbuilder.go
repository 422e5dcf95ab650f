package cleanup

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// SHA256PathBuilder derives string_key as the lowercase hex SHA-256 digest
// of the key bytes, and lays artifacts out in the conventional two-level
// fan-out directory used by content-addressed stores: the first two and
// next two hex characters become nested directories, e.g. key digest
// "abcd1234..." lands at "ab/cd/abcd1234...".
//
// This is a reference/demo implementation; spec.md leaves the hashing
// scheme out of scope.
type SHA256PathBuilder struct {
	root string
}

// NewSHA256PathBuilder returns a PathBuilder rooted at root.
func NewSHA256PathBuilder(root string) *SHA256PathBuilder {
	return &SHA256PathBuilder{root: root}
}

func (b *SHA256PathBuilder) Derive(key []byte) Entry {
	sum := sha256.Sum256(key)
	digest := hex.EncodeToString(sum[:])

	physical := filepath.Join(b.root, digest[0:2], digest[2:4], digest)

	return Entry{
		StringKey:    digest,
		PhysicalPath: physical,
		RelativePath: filepath.Join(digest[0:2], digest[2:4], digest),
	}
}

// Compile-time interface check.
var _ PathBuilder = (*SHA256PathBuilder)(nil)
