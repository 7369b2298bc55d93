// Package realtime follows the live Zeek spool directory, converting only the
// lines appended since the previous scan.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"Go2NetKDD/internal/correlator"
	"Go2NetKDD/internal/engine/pipeline"
	"Go2NetKDD/internal/ledger"
	"Go2NetKDD/internal/metrics"
	"Go2NetKDD/internal/model"
	"Go2NetKDD/internal/zeeklog"

	"go.uber.org/zap"
)

const connLog = "conn.log"

// Options configure the poll loop.
type Options struct {
	SpoolDir string
	Interval time.Duration
	// EmptyScanReset is the number of consecutive scans without new
	// connections after which every offset is reset.
	EmptyScanReset int
	Verify         ledger.VerifyOptions
}

// ScanResult summarizes one scan.
type ScanResult struct {
	Files          int
	Added          []string
	Removed        []string
	Resets         []ledger.Reset
	NewConnections int
	Enriched       int
	Emitted        int
}

// Runner owns the ledger lifecycle and the poll loop.
type Runner struct {
	opts       Options
	ledger     *ledger.Ledger
	corr       *correlator.Correlator
	pipe       *pipeline.Pipeline
	emptyScans int
}

// New creates a runner. The ledger should already be loaded.
func New(opts Options, l *ledger.Ledger, pipe *pipeline.Pipeline) *Runner {
	if opts.EmptyScanReset <= 0 {
		opts.EmptyScanReset = 3
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Runner{opts: opts, ledger: l, corr: correlator.New(), pipe: pipe}
}

// Run scans every interval until ctx is cancelled, then persists the ledger
// one last time and returns the result of that final write.
func (r *Runner) Run(ctx context.Context) error {
	zap.S().Infof("Real-time monitoring started on %s, interval %s", r.opts.SpoolDir, r.opts.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.S().Info("Real-time monitoring stopping, flushing ledger.")
			// The scan context is gone; give the final write its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := r.ledger.Persist(flushCtx)
			cancel()
			return err
		case <-timer.C:
			if _, err := r.ScanOnce(ctx); err != nil {
				zap.S().Errorf("Scan failed: %v", err)
			}
			timer.Reset(r.opts.Interval)
		}
	}
}

// ScanOnce runs one cycle: reconcile the file set, verify offsets, apply the
// empty-scan reset, read new lines, persist the ledger and emit.
func (r *Runner) ScanOnce(ctx context.Context) (ScanResult, error) {
	var res ScanResult

	files, err := r.listFiles()
	if err != nil {
		return res, err
	}
	res.Files = len(files)
	if len(files) == 0 {
		zap.S().Infof("No log files found in %s", r.opts.SpoolDir)
		return res, nil
	}

	res.Added, res.Removed = r.ledger.Sync(files)
	for _, f := range res.Added {
		zap.S().Infof("New log file detected: %s", filepath.Base(f))
	}
	for _, f := range res.Removed {
		zap.S().Infof("Log file disappeared: %s", filepath.Base(f))
	}
	res.Resets = r.ledger.Verify(r.opts.Verify)

	if r.emptyScans >= r.opts.EmptyScanReset {
		zap.S().Warnf("%d scans without new connections, resetting all offsets", r.emptyScans)
		res.Resets = append(res.Resets, r.ledger.ResetAll()...)
		r.emptyScans = 0
	}

	// Windows never span cycles: the connection map starts empty every scan.
	r.corr.Reset()
	res.NewConnections, res.Enriched = r.read(ctx, files)

	if err := r.ledger.Persist(ctx); err != nil {
		zap.S().Errorf("Failed to save ledger: %v", err)
	}

	if res.NewConnections > 0 {
		batch := r.pipe.Emit(ctx, r.corr.Connections())
		res.Emitted = batch.Len()
		r.emptyScans = 0
		zap.S().Infof("Appended %d records (%d new connections)", res.Emitted, res.NewConnections)
	} else {
		r.emptyScans++
		zap.S().Info("No new connections since the previous scan")
	}
	metrics.EmptyScanStreak.Set(float64(r.emptyScans))
	return res, nil
}

// read consumes conn.log first, then every recognized protocol log in name
// order, advancing each file's offset after a successful read.
func (r *Runner) read(ctx context.Context, files []string) (added, enriched int) {
	for _, path := range files {
		if filepath.Base(path) != connLog {
			continue
		}
		r.readFile(path, func(rec model.LogRecord) {
			if r.corr.Add(rec) {
				added++
			}
		})
	}

	for _, path := range files {
		if ctx.Err() != nil {
			return added, enriched
		}
		name := filepath.Base(path)
		if name == connLog {
			continue
		}
		p, ok := correlator.ParseProtocol(zeeklog.LogType(name))
		if !ok {
			zap.S().Debugf("Skipping %s: not an enrichment log", name)
			continue
		}
		r.readFile(path, func(rec model.LogRecord) {
			if r.corr.Attach(p, rec) {
				enriched++
			}
		})
	}
	return added, enriched
}

func (r *Runner) readFile(path string, fn func(model.LogRecord)) {
	start := r.ledger.Get(path)
	sum, err := zeeklog.Each(path, zeeklog.Options{StartLine: start, StopAtPartial: true}, fn)
	if err != nil {
		zap.S().Errorf("Error reading %s: %v", path, err)
		return
	}
	r.ledger.Advance(path, sum.End)
	if sum.LinesRead > 0 {
		zap.S().Infof("Read %s: %d lines from line %d, %d records, %d dropped",
			filepath.Base(path), sum.LinesRead, start, sum.Records, sum.Dropped)
	}
}

// listFiles returns the absolute paths of the *.log files of the spool
// directory, excluding stderr/stdout captures.
func (r *Runner) listFiles() ([]string, error) {
	dir, err := filepath.Abs(r.opts.SpoolDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		zap.S().Errorf("Spool directory %s does not exist", dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".log") ||
			strings.HasPrefix(name, "stderr") || strings.HasPrefix(name, "stdout") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}
