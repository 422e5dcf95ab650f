// Package writebuffer holds a single pending artifact in memory: the bytes
// produced by a cache miss, plus its content type, while it waits to be
// flushed to disk. A Buffer is immutable after construction and safe for
// any number of concurrent readers.
package writebuffer

import (
	"bytes"
	"io"
	"time"
)

// Buffer owns one artifact (bytes + content type) plus the bookkeeping the
// coordinator and write queue need: the key it was created under and when.
//
// Buffer is immutable once constructed: Data is copied into an unexported
// field at New time, so a caller mutating the slice it handed to New cannot
// corrupt a Buffer that a flush task or a concurrent reader may already be
// looking at.
type Buffer struct {
	stringKey   string
	data        []byte
	contentType string
	createdAt   time.Time
}

// New copies data into a new Buffer associated with stringKey and
// contentType. The caller's data slice is not retained.
func New(stringKey string, data []byte, contentType string) *Buffer {
	owned := make([]byte, len(data))
	copy(owned, data)

	return &Buffer{
		stringKey:   stringKey,
		data:        owned,
		contentType: contentType,
		createdAt:   time.Now(),
	}
}

// NewReader returns a fresh read-only view over the buffer's bytes. Each
// call returns an independent cursor; readers never observe partial or
// mutated content because the underlying bytes never change after New.
func (b *Buffer) NewReader() io.Reader {
	return bytes.NewReader(b.data)
}

// UsedBytes returns the artifact length - the quantity the write queue
// accounts against its byte budget. It does not include any bookkeeping
// overhead of the Buffer struct itself.
func (b *Buffer) UsedBytes() int {
	return len(b.data)
}

// StringKey returns the stable textual key this buffer was created under.
func (b *Buffer) StringKey() string {
	return b.stringKey
}

// ContentType returns the artifact's content type.
func (b *Buffer) ContentType() string {
	return b.contentType
}

// CreatedAt returns when the buffer was constructed.
func (b *Buffer) CreatedAt() time.Time {
	return b.createdAt
}

// WriteTo writes the buffer's bytes to w, implementing [io.WriterTo] so
// callers flushing to disk (or anywhere else) can avoid an intermediate
// copy through NewReader.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.data)
	return int64(n), err
}
