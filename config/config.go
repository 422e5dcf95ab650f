// Package config loads the coordinator's tunables from a HuJSON
// (JSON-with-comments) file, mirroring the two-step standardize-then-
// unmarshal pattern used throughout this codebase's configuration loading.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

// ErrConfigInvalid wraps a config file that failed to parse as HuJSON or
// did not unmarshal into Config.
var ErrConfigInvalid = errors.New("config: invalid config file")

// Config holds the coordinator's tunable parameters. Field names mirror
// the lock/queue/flush knobs the coordination engine reads at call time.
type Config struct {
	// MaxQueuedBytes bounds the WriteQueue's total buffered bytes. Zero or
	// negative disables async queuing entirely: every enqueue reports
	// QueueFull.
	MaxQueuedBytes int64 `json:"max_queued_bytes"`

	// WaitForIdenticalRequestsMS is the timeout, in milliseconds, for
	// acquiring a queue lock (dedup window for identical in-flight
	// requests).
	WaitForIdenticalRequestsMS int64 `json:"wait_for_identical_requests_ms"`

	// WaitForIdenticalDiskWritesMS is the timeout, in milliseconds, for
	// acquiring a file-write lock while waiting on a concurrent disk
	// write for the same key.
	WaitForIdenticalDiskWritesMS int64 `json:"wait_for_identical_disk_writes_ms"`

	// WriteSynchronouslyWhenQueueFull, when true, falls back to a
	// synchronous disk write instead of returning an uncached Miss when
	// the write queue is at capacity.
	WriteSynchronouslyWhenQueueFull bool `json:"write_synchronously_when_queue_full"`

	// FailOnEnqueueLockTimeout, when true, treats a queue-lock acquisition
	// timeout as a hard failure instead of falling back to invoking the
	// producer directly and returning its bytes uncached.
	FailOnEnqueueLockTimeout bool `json:"fail_on_enqueue_lock_timeout"`

	// MoveFilesIntoPlace, when true, tells the FileWriter to use its
	// injected MoveFunc (an atomic overwrite-in-place primitive) instead
	// of the default rename-if-not-exists behavior.
	MoveFilesIntoPlace bool `json:"move_files_into_place"`
}

// DefaultConfig returns conservative defaults: a modest in-memory queue
// budget, short dedup windows, and the safer (non-overwriting) write path.
func DefaultConfig() Config {
	return Config{
		MaxQueuedBytes:                  64 * 1024 * 1024,
		WaitForIdenticalRequestsMS:      5000,
		WaitForIdenticalDiskWritesMS:    5000,
		WriteSynchronouslyWhenQueueFull: false,
		FailOnEnqueueLockTimeout:        false,
		MoveFilesIntoPlace:              false,
	}
}

// WaitForIdenticalRequests returns WaitForIdenticalRequestsMS as a
// time.Duration.
func (c Config) WaitForIdenticalRequests() time.Duration {
	return time.Duration(c.WaitForIdenticalRequestsMS) * time.Millisecond
}

// WaitForIdenticalDiskWrites returns WaitForIdenticalDiskWritesMS as a
// time.Duration.
func (c Config) WaitForIdenticalDiskWrites() time.Duration {
	return time.Duration(c.WaitForIdenticalDiskWritesMS) * time.Millisecond
}

// LoadConfig reads the HuJSON file at path, standardizes it to plain JSON,
// and unmarshals it over DefaultConfig() so that fields absent from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: invalid JSONC: %w", ErrConfigInvalid, path, err)
	}

	cfg := DefaultConfig()

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w %s: invalid JSON: %w", ErrConfigInvalid, path, err)
	}

	return cfg, nil
}
