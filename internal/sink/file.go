// Package sink persists the final enriched record set: timestamped local
// files, S3 uploads, and document-store upserts keyed by thread_id. Sinks
// consume the record set read-only; a failing sink is a partial failure and
// never rolls back the others.
package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/edupulse/lsexport/internal/record"
)

// Filenames follow the legacy n8n convention: 12-hour clock, local time.
const fileTimeLayout = "2006-01-02-03-04"

// FileWriter writes the full and summary export files into a directory.
type FileWriter struct {
	dir    string
	loc    *time.Location
	logger *slog.Logger
}

// NewFileWriter creates a writer for dir. File names are timestamped in the
// named IANA timezone; an unknown name falls back to UTC.
func NewFileWriter(dir, timezone string, logger *slog.Logger) *FileWriter {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("unknown timezone for file names, using UTC", "timezone", timezone)
		loc = time.UTC
	}
	return &FileWriter{dir: dir, loc: loc, logger: logger}
}

// WriteRuns writes two files: the full record set, and a summary with the
// bulky raw outputs stripped from each record (the derived conversation
// fields stay). Returns both paths.
func (w *FileWriter) WriteRuns(runs []record.Run) (fullPath, summaryPath string, err error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	stamp := time.Now().In(w.loc).Format(fileTimeLayout)

	fullPath = filepath.Join(w.dir, fmt.Sprintf("langchain-runs-%s.txt", stamp))
	if err := writeJSON(fullPath, runs); err != nil {
		return "", "", err
	}
	w.logger.Info("wrote full export file", "path", fullPath, "runs", len(runs))

	summary := make([]record.Run, len(runs))
	for i, run := range runs {
		s := run.Clone()
		delete(s, "outputs")
		summary[i] = s
	}

	summaryPath = filepath.Join(w.dir, fmt.Sprintf("langchain-runs-summary-%s.txt", stamp))
	if err := writeJSON(summaryPath, summary); err != nil {
		return "", "", err
	}
	w.logger.Info("wrote summary export file", "path", summaryPath, "runs", len(summary))

	return fullPath, summaryPath, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
