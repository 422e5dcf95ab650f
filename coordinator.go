// Package imgcache implements the coordination engine for a hybrid
// memory+disk content-addressed artifact cache: deduplicating concurrent
// requests for the same key, bounding memory used by unflushed writes via
// a bounded queue, and writing through to disk under a per-key lock.
package imgcache

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/calvinalkan/imgcache/cleanup"
	"github.com/calvinalkan/imgcache/config"
	"github.com/calvinalkan/imgcache/filewriter"
	"github.com/calvinalkan/imgcache/fs"
	"github.com/calvinalkan/imgcache/keyedlock"
	"github.com/calvinalkan/imgcache/writebuffer"
	"github.com/calvinalkan/imgcache/writequeue"
)

// Producer synthesizes the bytes and content type for a cache miss. It is
// invoked with the caller's context and may return an error, which
// propagates to the caller of GetOrCreate unchanged - a producer failure
// never mutates cache state.
type Producer func(ctx context.Context) (data []byte, contentType string, err error)

// Coordinator is the public entry point: it composes the keyed lock
// registries, the write queue, and the file writer into the get_or_create
// protocol. The zero value is not usable; use [New].
type Coordinator struct {
	paths    cleanup.PathBuilder
	mgr      cleanup.Manager
	queue    *writequeue.Queue
	fsys     fs.FS
	writer   *filewriter.Writer
	moveFunc filewriter.MoveFunc
	cfg      config.Config
	log      *log.Logger

	queueLocks *keyedlock.Registry
	fileLocks  *keyedlock.Registry
	evictLocks *keyedlock.Registry
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithFS overrides the filesystem seam the coordinator reads through for
// its disk probes. Defaults to [fs.Real].
func WithFS(filesystem fs.FS) Option {
	return func(c *Coordinator) { c.fsys = filesystem }
}

// WithLogger overrides the logger used for the two situations the spec
// says must never reach the caller as an error: swallowed background-flush
// errors and eviction-failure diagnostics. Defaults to [log.Default].
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) { c.log = logger }
}

// WithMoveFunc installs a [filewriter.MoveFunc] used when
// cfg.MoveFilesIntoPlace is set, in place of the default
// rename-if-not-exists behavior.
func WithMoveFunc(move filewriter.MoveFunc) Option {
	return func(c *Coordinator) { c.moveFunc = move }
}

// New constructs a Coordinator. paths and mgr are the injected external
// collaborators described in spec §6.1; the caller owns their lifetime.
func New(cfg config.Config, paths cleanup.PathBuilder, mgr cleanup.Manager, opts ...Option) *Coordinator {
	c := &Coordinator{
		paths:      paths,
		mgr:        mgr,
		cfg:        cfg,
		fsys:       fs.NewReal(),
		log:        log.Default(),
		queueLocks: keyedlock.New(),
		fileLocks:  keyedlock.New(),
		evictLocks: keyedlock.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	var move filewriter.MoveFunc
	if cfg.MoveFilesIntoPlace {
		move = c.moveFunc
	}

	c.writer = filewriter.New(c.fsys, c.fileLocks, move)

	c.queue = writequeue.New(cfg.MaxQueuedBytes, func(stringKey string, err error) {
		c.log.Printf("imgcache: background flush for %s failed: %v", stringKey, err)
	})

	return c
}

// Close awaits every flush task spawned before it was called. The spec
// expects the host to call this before process exit so in-flight
// background flushes are not lost.
func (c *Coordinator) Close(ctx context.Context) error {
	return c.queue.AwaitAll(ctx)
}

// GetOrCreate implements spec §4.5: it returns the artifact for key from
// disk, from an in-flight write buffer, or by invoking producer and
// persisting the result, deduplicating concurrent identical requests along
// the way.
func (c *Coordinator) GetOrCreate(ctx context.Context, key []byte, producer Producer) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	entry := c.paths.Derive(key)

	// Step 1: fire-and-forget LRU notification.
	go c.mgr.NotifyUsed(entry)

	// Step 2: fast, non-blocking disk probe.
	if stream, found, err := c.probeOnce(entry); err != nil {
		return Result{}, err
	} else if found {
		contentType, _ := c.mgr.GetContentType(ctx, entry)

		return Result{Detail: DiskHit, Reader: stream, ContentType: contentType}, nil
	}

	// Step 3: acquire the queue lock, deduplicating identical in-flight
	// requests through the locked section below.
	var (
		result  Result
		bodyErr error
	)

	ran, lockErr := c.queueLocks.TryExecute(ctx, entry.StringKey, c.cfg.WaitForIdenticalRequests(), func(ctx context.Context) error {
		result, bodyErr = c.getOrCreateLocked(ctx, entry, producer)
		return bodyErr
	})

	if !ran {
		if lockErr != nil {
			return Result{}, fmt.Errorf("imgcache: %w", lockErr)
		}

		return c.queueLockTimeoutFallback(ctx, entry, producer)
	}

	if bodyErr != nil {
		return Result{}, bodyErr
	}

	return result, nil
}

// getOrCreateLocked runs spec §4.5 step 4, inside the queue lock for
// entry.StringKey.
func (c *Coordinator) getOrCreateLocked(ctx context.Context, entry cleanup.Entry, producer Producer) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// 4a: re-check the write queue.
	if existing, ok := c.queue.Get(entry.StringKey); ok {
		if buf, ok := existing.(*writebuffer.Buffer); ok {
			return Result{Detail: MemoryHit, Reader: buf.NewReader(), ContentType: buf.ContentType()}, nil
		}
	}

	// 4b: re-check disk, this time willing to wait out a concurrent
	// writer holding a file lock.
	if stream, detail, err := c.probeWithRetry(ctx, entry); err != nil {
		return Result{}, err
	} else if stream != nil {
		contentType, _ := c.mgr.GetContentType(ctx, entry)

		return Result{Detail: detail, Reader: stream, ContentType: contentType}, nil
	}

	// 4c: invoke the producer.
	data, contentType, err := producer(ctx)
	if err != nil {
		return Result{}, err
	}

	// 4d/4e: build the buffer and the early result.
	buf := writebuffer.New(entry.StringKey, data, contentType)
	result := Result{Detail: Miss, Reader: buf.NewReader(), ContentType: contentType}

	// 4f: attempt the async enqueue.
	enqueueResult := c.queue.Enqueue(buf, func(ctx context.Context) error {
		return c.asyncFlush(ctx, entry, buf, contentType)
	})

	// 4g: queue-full branching.
	if enqueueResult == writequeue.QueueFull {
		if c.cfg.WriteSynchronouslyWhenQueueFull {
			detail, flushErr := c.flush(ctx, entry, buf, contentType, true)
			if flushErr != nil {
				return Result{}, flushErr
			}

			result.Detail = detail
		}
	}

	return result, nil
}

// queueLockTimeoutFallback implements spec §4.7.
func (c *Coordinator) queueLockTimeoutFallback(ctx context.Context, entry cleanup.Entry, producer Producer) (Result, error) {
	if c.cfg.FailOnEnqueueLockTimeout {
		return Result{Detail: QueueLockTimeoutAndFailed}, nil
	}

	data, contentType, err := producer(ctx)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Detail:      QueueLockTimeoutAndCreated,
		Reader:      bytes.NewReader(data),
		ContentType: contentType,
	}, nil
}

const diskProbeRetryInterval = 15 * time.Millisecond
