// Package ledger tracks, per monitored log file, how many lines have already
// been consumed, and repairs offsets that no longer match the file on disk.
package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/metrics"

	"go.uber.org/zap"
)

// Store persists the ledger document.
type Store interface {
	Load(ctx context.Context) (map[string]int64, error)
	Save(ctx context.Context, positions map[string]int64) error
	Close() error
}

// Reset describes one entry that was set back to zero.
type Reset struct {
	Path   string
	Offset int64 // offset before the reset
	Reason string
}

const (
	ReasonMissing    = "missing"
	ReasonBeyondSize = "beyond_size"
	ReasonOvercount  = "overcount"
	ReasonEmptyScans = "empty_scans"
)

// VerifyOptions tune the consistency checks.
type VerifyOptions struct {
	ToleranceBytes  int64
	OvercountFactor float64
	MinLines        int64
}

// DefaultVerifyOptions returns the stock tolerances.
func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{ToleranceBytes: 100, OvercountFactor: 1.5, MinLines: 10}
}

// Ledger maps absolute file paths to the number of lines already consumed.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]int64
	store     Store
}

// New creates an empty ledger persisted through store.
func New(store Store) *Ledger {
	return &Ledger{positions: make(map[string]int64), store: store}
}

// Load replaces the in-memory state with the stored document. On failure the
// ledger is left empty and the error is returned for the caller to report.
func (l *Ledger) Load(ctx context.Context) error {
	positions, err := l.store.Load(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[string]int64, len(positions))
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	for path, line := range positions {
		if line < 0 {
			line = 0
		}
		l.positions[path] = line
	}
	return nil
}

// Persist writes the current state through the store.
func (l *Ledger) Persist(ctx context.Context) error {
	if err := l.store.Save(ctx, l.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist ledger: %w", err)
	}
	return nil
}

// Get returns the consumed line count of a file, 0 when unknown.
func (l *Ledger) Get(path string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positions[path]
}

// Advance records the new ending offset of a file.
func (l *Ledger) Advance(path string, line int64) {
	if line < 0 {
		line = 0
	}
	l.mu.Lock()
	l.positions[path] = line
	l.mu.Unlock()
}

// Sync reconciles the ledger with the current file set: new files start at
// zero and entries of vanished files are removed. Both lists are sorted.
func (l *Ledger) Sync(files []string) (added, removed []string) {
	current := make(map[string]struct{}, len(files))
	for _, f := range files {
		current[f] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for path := range l.positions {
		if _, ok := current[path]; !ok {
			delete(l.positions, path)
			removed = append(removed, path)
		}
	}
	for path := range current {
		if _, ok := l.positions[path]; !ok {
			l.positions[path] = 0
			added = append(added, path)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// ResetAll sets every offset back to zero.
func (l *Ledger) ResetAll() []Reset {
	l.mu.Lock()
	defer l.mu.Unlock()
	var resets []Reset
	for _, path := range sortedKeys(l.positions) {
		if l.positions[path] == 0 {
			continue
		}
		resets = append(resets, Reset{Path: path, Offset: l.positions[path], Reason: ReasonEmptyScans})
		l.positions[path] = 0
	}
	metrics.LedgerResets.WithLabelValues(ReasonEmptyScans).Add(float64(len(resets)))
	return resets
}

// Verify resets the entries whose offset is inconsistent with the file on
// disk: the file is gone, the offset exceeds the byte size by more than the
// tolerance, or the lines implied by the offset overshoot the real line count.
func (l *Ledger) Verify(opts VerifyOptions) []Reset {
	snapshot := l.Snapshot()

	var resets []Reset
	for _, path := range sortedKeys(snapshot) {
		offset := snapshot[path]
		reason, err := check(path, offset, opts)
		if err != nil {
			zap.S().Warnf("Could not verify ledger entry %s: %v", path, err)
			continue
		}
		if reason == "" {
			continue
		}
		resets = append(resets, Reset{Path: path, Offset: offset, Reason: reason})
	}

	l.mu.Lock()
	for _, r := range resets {
		l.positions[r.Path] = 0
		metrics.LedgerResets.WithLabelValues(r.Reason).Inc()
		zap.S().Warnf("Ledger entry for %s reset from %d (%s)", r.Path, r.Offset, r.Reason)
	}
	l.mu.Unlock()
	return resets
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.positions))
	for k, v := range l.positions {
		out[k] = v
	}
	return out
}

// Len returns the number of tracked files.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Close releases the store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

func check(path string, offset int64, opts VerifyOptions) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return ReasonMissing, nil
	}
	if err != nil {
		return "", err
	}

	size := info.Size()
	if offset > size+opts.ToleranceBytes {
		return ReasonBeyondSize, nil
	}

	lines, err := countLines(path)
	if err != nil {
		return "", err
	}
	avgLineSize := float64(size) / float64(max(lines, 1))
	estimated := float64(offset) / max(avgLineSize, 1)
	if offset > 0 && lines > opts.MinLines && estimated > float64(lines)*opts.OvercountFactor {
		return ReasonOvercount, nil
	}
	return "", nil
}

// countLines counts lines the way a line iterator does: a final line without
// a newline still counts.
func countLines(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	r := bufio.NewReaderSize(file, 64*1024)
	buf := make([]byte, 64*1024)
	var lines int64
	var last byte = '\n'
	for {
		n, err := r.Read(buf)
		if n > 0 {
			lines += int64(bytes.Count(buf[:n], []byte{'\n'}))
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		lines++
	}
	return lines, nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Open builds the ledger on the configured backend without loading it.
func Open(cfg config.LedgerConfig) (*Ledger, error) {
	switch cfg.Backend {
	case config.LedgerBackendRedis:
		store, err := NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return New(store), nil
	case config.LedgerBackendFile, "":
		return New(NewFileStore(cfg.Path)), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend '%s'", cfg.Backend)
	}
}
