package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// pollInterval paces the spool scan when the directory is empty.
const pollInterval = 500 * time.Millisecond

// LocalQueue spools jobs as JSON files in a directory. File names sort
// by enqueue time, a rename claims a job, deletion acks it. Multiple
// worker processes on the same machine can share one spool because
// rename is atomic.
type LocalQueue struct {
	dir string
}

// NewLocalQueue creates the spool directory if needed.
func NewLocalQueue(dir string) (*LocalQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}
	return &LocalQueue{dir: dir}, nil
}

// Enqueue writes the job via temp file plus rename so consumers never
// observe a partial write.
func (q *LocalQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	name := strconv.FormatInt(time.Now().UnixNano(), 10) + "_" +
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + ".json"

	tmp := filepath.Join(q.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write job: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(q.dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Receive claims the oldest job. A claimed file keeps the .claimed
// suffix until acked; leftover claims from a crashed worker are
// re-offered after a grace period.
func (q *LocalQueue) Receive(ctx context.Context) (*Delivery, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if d, err := q.tryClaim(); err != nil {
			return nil, err
		} else if d != nil {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *LocalQueue) tryClaim() (*Delivery, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan spool: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".") {
			names = append(names, name)
		}
		if strings.HasSuffix(name, ".claimed") {
			q.reclaimStale(name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		src := filepath.Join(q.dir, name)
		claimed := src + ".claimed"
		if err := os.Rename(src, claimed); err != nil {
			continue // another worker won the claim
		}
		// Rename keeps mtime, so stamp the claim time explicitly for
		// the staleness check.
		now := time.Now()
		_ = os.Chtimes(claimed, now, now)
		data, err := os.ReadFile(claimed)
		if err != nil {
			os.Remove(claimed)
			continue
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			os.Remove(claimed)
			continue
		}
		return &Delivery{
			Job: job,
			Ack: func(context.Context) error {
				return os.Remove(claimed)
			},
		}, nil
	}
	return nil, nil
}

// reclaimStale re-offers a claimed job whose worker died. The claim age
// comes from the file's mtime, set by the claiming rename.
func (q *LocalQueue) reclaimStale(name string) {
	const staleAfter = 10 * time.Minute
	path := filepath.Join(q.dir, name)
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) < staleAfter {
		return
	}
	_ = os.Rename(path, strings.TrimSuffix(path, ".claimed"))
}
