package imgcache

import (
	"context"
	"io"
	"time"

	"github.com/calvinalkan/imgcache/cleanup"
	"github.com/calvinalkan/imgcache/filewriter"
	"github.com/calvinalkan/imgcache/writebuffer"
)

// flush implements spec §4.8's "synchronized form": it acquires
// evict_and_write_locks[entry.StringKey] with wait_for_identical_requests_ms,
// then runs flushInner with the lock held.
func (c *Coordinator) flush(ctx context.Context, entry cleanup.Entry, buf *writebuffer.Buffer, contentType string, queueFull bool) (Detail, error) {
	var (
		detail   Detail
		innerErr error
	)

	ran, lockErr := c.evictLocks.TryExecute(ctx, entry.StringKey, c.cfg.WaitForIdenticalRequests(), func(ctx context.Context) error {
		detail, innerErr = c.flushInner(ctx, entry, buf, contentType, queueFull)
		return innerErr
	})

	if !ran {
		if lockErr != nil {
			return Unknown, lockErr
		}

		return EvictAndWriteLockTimedOut, nil
	}

	return detail, innerErr
}

// flushInner is the §4.8 flush body, shared by the async and synchronous
// paths.
func (c *Coordinator) flushInner(ctx context.Context, entry cleanup.Entry, buf *writebuffer.Buffer, contentType string, queueFull bool) (Detail, error) {
	allowEviction := queueFull || c.cfg.MaxQueuedBytes <= 0

	reserve := c.mgr.TryReserveSpace(ctx, entry, contentType, int64(buf.UsedBytes()), allowEviction, c.evictLocks)
	if !reserve.Success {
		c.log.Printf("imgcache: eviction failed for %s: %s", entry.StringKey, reserve.Message)
		return CacheEvictionFailed, nil
	}

	// §9 open question: the source verifies existence first only on the
	// background-flush path (queueFull=false) and skips it on the
	// synchronous path, having already re-checked under the queue lock.
	// Preserved here rather than "corrected".
	verifyExistsFirst := !queueFull

	outcome, writeErr := c.writer.TryWrite(ctx, filewriter.Entry{
		StringKey:    entry.StringKey,
		PhysicalPath: entry.PhysicalPath,
	}, func(w io.Writer) error {
		_, err := buf.WriteTo(w)
		return err
	}, verifyExistsFirst, c.cfg.WaitForIdenticalDiskWrites())

	// mark_file_created is called unconditionally after try_write, even on
	// FileAlreadyExists or LockTimeout - preserved per §9.
	c.mgr.MarkFileCreated(entry, contentType, int64(buf.UsedBytes()), time.Now())

	if writeErr != nil {
		return Unknown, writeErr
	}

	switch outcome {
	case filewriter.FileCreated:
		return WriteSucceeded, nil
	case filewriter.FileAlreadyExists:
		return FileAlreadyExists, nil
	case filewriter.LockTimeout:
		return WriteTimedOut, nil
	default:
		return Unknown, nil
	}
}

// asyncFlush is the flush function handed to [writequeue.Queue.Enqueue].
// Its error return is only used by the queue to report otherwise-swallowed
// failures to the coordinator's logger (spec §7 "unexpected I/O errors in
// flush ... caught ... logged, dropped"); the original caller already holds
// its reader and never sees this outcome.
func (c *Coordinator) asyncFlush(ctx context.Context, entry cleanup.Entry, buf *writebuffer.Buffer, contentType string) error {
	detail, err := c.flush(ctx, entry, buf, contentType, false)
	if err != nil {
		return err
	}

	if detail != WriteSucceeded {
		c.log.Printf("imgcache: background flush for %s completed with detail %s", entry.StringKey, detail)
	}

	return nil
}
