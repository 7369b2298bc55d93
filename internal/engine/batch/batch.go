// Package batch converts an archive of rotated, compressed Zeek logs in one
// pass.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"Go2NetKDD/internal/correlator"
	"Go2NetKDD/internal/engine/pipeline"
	"Go2NetKDD/internal/model"
	"Go2NetKDD/internal/zeeklog"

	"go.uber.org/zap"
)

const archiveSuffix = ".log.gz"

// Runner walks <logs_dir>/<date>/<type>.<rotation>.log.gz.
type Runner struct {
	logsDir string
	corr    *correlator.Correlator
	pipe    *pipeline.Pipeline
}

// New creates a runner over logsDir.
func New(logsDir string, pipe *pipeline.Pipeline) *Runner {
	return &Runner{logsDir: logsDir, corr: correlator.New(), pipe: pipe}
}

// Run ingests every date directory in lexical order, then emits all
// connections once. Unreadable files are skipped; only an unreadable logs
// directory or a cancelled context is an error.
func (r *Runner) Run(ctx context.Context) (*model.Batch, error) {
	entries, err := os.ReadDir(r.logsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read logs directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.processDate(filepath.Join(r.logsDir, entry.Name()))
	}

	zap.S().Infof("Batch pass complete: %d connections", r.corr.Len())
	return r.pipe.Emit(ctx, r.corr.Connections()), nil
}

// processDate ingests the conn logs of one date directory, then enriches
// with each protocol in turn.
func (r *Runner) processDate(dir string) {
	files, err := os.ReadDir(dir)
	if err != nil {
		zap.S().Errorf("Skipping directory %s: %v", dir, err)
		return
	}

	added := 0
	for _, path := range archives(dir, files, "conn") {
		sum, err := zeeklog.Each(path, zeeklog.Options{}, func(rec model.LogRecord) {
			if r.corr.Add(rec) {
				added++
			}
		})
		if err != nil {
			zap.S().Errorf("Error reading %s: %v", path, err)
			continue
		}
		zap.S().Debugf("Read %s: %d records, %d dropped", path, sum.Records, sum.Dropped)
	}

	matched := 0
	for _, p := range correlator.Protocols() {
		for _, path := range archives(dir, files, p.String()) {
			_, err := zeeklog.Each(path, zeeklog.Options{}, func(rec model.LogRecord) {
				if r.corr.Attach(p, rec) {
					matched++
				}
			})
			if err != nil {
				zap.S().Errorf("Error reading %s: %v", path, err)
			}
		}
	}

	zap.S().Infof("Processed %s: %d new connections, %d enrichment records", dir, added, matched)
}

// archives returns the sorted paths of <logType>.*.log.gz in dir.
func archives(dir string, files []os.DirEntry, logType string) []string {
	prefix := logType + "."
	var out []string
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out
}
