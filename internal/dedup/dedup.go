// Package dedup collapses many runs per conversation thread into the single
// latest one as pages arrive from the API. It owns the thread map; nothing
// else mutates it.
package dedup

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/edupulse/lsexport/internal/enrich"
	"github.com/edupulse/lsexport/internal/events"
	"github.com/edupulse/lsexport/internal/record"
)

// syntheticPrefix namespaces keys for runs without a thread_id, so they can
// never collide with real thread ids.
const syntheticPrefix = "_no_thread_"

// Deduplicator maintains the running latest-run-per-thread map. Survivors are
// stored enriched; the replacement comparison re-parses each survivor's own
// start_time field, which enrichment preserves verbatim.
type Deduplicator struct {
	enricher *enrich.Enricher
	events   events.Publisher
	logger   *slog.Logger

	threads     map[string]record.Run
	synthetic   int // counter for runs with neither thread_id nor id, export-run scoped
	totalMerged int
	excluded    int
}

// New creates an empty deduplicator for one export run.
func New(enricher *enrich.Enricher, sink events.Publisher, logger *slog.Logger) *Deduplicator {
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{
		enricher: enricher,
		events:   sink,
		logger:   logger,
		threads:  make(map[string]record.Run),
	}
}

// MergePage folds one page of raw runs into the thread map and returns the
// number of records discarded or superseded in this call. A survivor's
// start_time is never earlier than that of any record it displaced; equal or
// unparseable instants resolve last-seen-wins.
func (d *Deduplicator) MergePage(runs []record.Run) int {
	excludedThisPage := 0

	for _, run := range runs {
		d.totalMerged++
		key := d.threadKey(run)
		ts := startInstant(run)

		existing, ok := d.threads[key]
		if !ok {
			d.threads[key] = d.enricher.Enrich(run)
			continue
		}

		if ts.Before(startInstant(existing)) {
			// Older duplicate: drop the incoming record.
			excludedThisPage++
			d.publishExcluded(key, run.StartTime(), existing.StartTime())
			continue
		}

		// Newer, or a tie: the incoming record wins and the previous
		// occupant counts as excluded.
		d.threads[key] = d.enricher.Enrich(run)
		excludedThisPage++
		d.publishExcluded(key, existing.StartTime(), run.StartTime())
	}

	d.excluded += excludedThisPage
	return excludedThisPage
}

// threadKey returns the dedup key for a run: its thread_id when present,
// otherwise a synthesized key unique within this export run.
func (d *Deduplicator) threadKey(run record.Run) string {
	if id := run.ThreadID(); id != "" {
		return id
	}
	if id := run.ID(); id != "" {
		return syntheticPrefix + id
	}
	d.synthetic++
	return fmt.Sprintf("%s#%d", syntheticPrefix, d.synthetic)
}

func (d *Deduplicator) publishExcluded(key, droppedStart, keptStart string) {
	d.logger.Debug("duplicate excluded", "thread_key", key, "dropped_start", droppedStart)
	if err := d.events.Publish(events.SubjectDuplicateExcluded, map[string]any{
		"thread_key":    key,
		"dropped_start": droppedStart,
		"kept_start":    keptStart,
	}); err != nil {
		d.logger.Warn("failed to publish duplicate event", "error", err)
	}
}

// startInstant maps a run's start_time to a comparable instant. Absent or
// unparseable timestamps sort as the earliest possible instant, so they lose
// to any record with a real timestamp.
func startInstant(run record.Run) time.Time {
	ts, ok := record.ParseTimestamp(run.StartTime())
	if !ok {
		return time.Time{}
	}
	return ts
}

// Len returns the number of surviving threads.
func (d *Deduplicator) Len() int {
	return len(d.threads)
}

// TotalMerged returns the count of raw records seen across all pages.
func (d *Deduplicator) TotalMerged() int {
	return d.totalMerged
}

// TotalExcluded returns the count of records discarded or superseded across
// all pages.
func (d *Deduplicator) TotalExcluded() int {
	return d.excluded
}

// Survivors returns the enriched survivors ordered by thread key. The order
// is deterministic so downstream output is reproducible.
func (d *Deduplicator) Survivors() []record.Run {
	keys := d.sortedKeys()
	out := make([]record.Run, 0, len(keys))
	for _, k := range keys {
		out = append(out, d.threads[k])
	}
	return out
}

// Trim removes survivors beyond max, dropping the tail of the key-sorted
// view, and returns how many were removed. Used by the debug record cap.
func (d *Deduplicator) Trim(max int) int {
	if max < 0 || len(d.threads) <= max {
		return 0
	}
	keys := d.sortedKeys()
	removed := 0
	for _, k := range keys[max:] {
		delete(d.threads, k)
		removed++
	}
	return removed
}

func (d *Deduplicator) sortedKeys() []string {
	keys := make([]string, 0, len(d.threads))
	for k := range d.threads {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
