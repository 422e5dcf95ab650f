package imgcache

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/calvinalkan/imgcache/cleanup"
	"github.com/calvinalkan/imgcache/diskio"
)

// probeOnce implements spec §4.5 step 2: a non-blocking check for an
// existing cache file. A locked file is treated as "not found yet" rather
// than waited on - the probe never blocks.
func (c *Coordinator) probeOnce(entry cleanup.Entry) (io.Reader, bool, error) {
	if _, err := c.fsys.Stat(entry.PhysicalPath); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, err
	}

	f, err := c.fsys.Open(entry.PhysicalPath)
	if err == nil {
		return f, true, nil
	}

	switch diskio.Classify(err) {
	case diskio.NotFound:
		return nil, false, nil
	case diskio.Locked:
		// Fall through without waiting; the caller will retry later under
		// the queue lock, where waiting is acceptable.
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// probeWithRetry implements spec §4.5 step 4b and §4.6: a disk check that,
// on encountering a locked file, waits out the lock under the file-write
// lock for entry.StringKey rather than giving up immediately.
func (c *Coordinator) probeWithRetry(ctx context.Context, entry cleanup.Entry) (io.Reader, Detail, error) {
	if _, err := c.fsys.Stat(entry.PhysicalPath); err != nil {
		if os.IsNotExist(err) {
			return nil, Unknown, nil
		}

		return nil, Unknown, err
	}

	f, err := c.fsys.Open(entry.PhysicalPath)
	if err == nil {
		return f, DiskHit, nil
	}

	if diskio.Classify(err) != diskio.Locked {
		return nil, Unknown, err
	}

	var (
		stream  io.Reader
		loopErr error
	)

	timeout := c.cfg.WaitForIdenticalDiskWrites()

	ran, lockErr := c.fileLocks.TryExecute(ctx, entry.StringKey, timeout, func(ctx context.Context) error {
		stream, loopErr = c.waitForUnlock(ctx, entry, timeout)
		return loopErr
	})

	if !ran {
		if lockErr != nil {
			return nil, Unknown, lockErr
		}
		// Lock itself timed out: miss, per spec §4.6 "If that lock cannot
		// be acquired in time, return null."
		return nil, Unknown, nil
	}

	if loopErr != nil {
		return nil, Unknown, loopErr
	}

	if stream == nil {
		return nil, Unknown, nil
	}

	return stream, ContendedDiskHit, nil
}

// waitForUnlock polls for the file to become readable, sleeping
// min(15ms, timeout/3) between attempts, until timeout elapses.
func (c *Coordinator) waitForUnlock(ctx context.Context, entry cleanup.Entry, timeout time.Duration) (io.Reader, error) {
	interval := diskProbeRetryInterval
	if third := timeout / 3; third < interval {
		interval = third
	}

	if interval <= 0 {
		interval = time.Millisecond
	}

	deadline := time.Now().Add(timeout)

	for {
		f, err := c.fsys.Open(entry.PhysicalPath)
		if err == nil {
			return f, nil
		}

		switch diskio.Classify(err) {
		case diskio.NotFound:
			return nil, nil
		case diskio.Locked:
			// Swallowed and retried, including the EACCES-as-UnauthorizedAccess
			// case: treated as transient on this path.
		default:
			return nil, err
		}

		if time.Now().Add(interval).After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
