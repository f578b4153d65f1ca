// Package export drives a full export run: paginate the remote query, fold
// every page into the deduplicator, and hand the surviving enriched records
// plus summary counters to the configured sinks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/lsexport/internal/dedup"
	"github.com/edupulse/lsexport/internal/events"
	"github.com/edupulse/lsexport/internal/langsmith"
	"github.com/edupulse/lsexport/internal/progress"
	"github.com/edupulse/lsexport/internal/record"
)

// Fetcher is the transport collaborator: one paged query fetch. An empty
// cursor means the first page; retries are the transport's own concern.
type Fetcher interface {
	FetchPage(ctx context.Context, q langsmith.Query, cursor string) (*langsmith.Page, error)
}

// Summary reports the outcome of one export run.
type Summary struct {
	RunID         string    `json:"run_id"`
	Pages         int       `json:"pages"`
	TotalFetched  int       `json:"total_fetched"`
	TotalUnique   int       `json:"total_unique"`
	TotalExcluded int       `json:"total_excluded_as_duplicate"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Stats         Stats     `json:"stats"`
}

// Exporter runs the pagination-dedup-enrichment pipeline. Pages are processed
// strictly one at a time: the next cursor is only known once the previous
// page has been consumed.
type Exporter struct {
	fetcher Fetcher
	dedup   *dedup.Deduplicator
	events  events.Publisher
	logger  *slog.Logger

	// DebugLimit caps surviving records; 0 disables the cap.
	DebugLimit int
}

func New(fetcher Fetcher, d *dedup.Deduplicator, sink events.Publisher, logger *slog.Logger) *Exporter {
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{fetcher: fetcher, dedup: d, events: sink, logger: logger}
}

// Run paginates the query until cursor exhaustion or the debug cap, returning
// the final enriched survivor set and summary counters. Transport failures
// are fatal and name the failed page index.
func (e *Exporter) Run(ctx context.Context, q langsmith.Query) ([]record.Run, *Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	e.logger.Info("starting export",
		"run_id", summary.RunID,
		"sessions", q.SessionIDs,
		"filter", q.FilterName,
		"window_start", q.StartTime,
		"window_end", q.EndTime,
		"debug_limit", e.DebugLimit,
	)
	e.publish(events.SubjectExportStarted, map[string]any{
		"run_id":       summary.RunID,
		"window_start": q.StartTime,
		"window_end":   q.EndTime,
	})

	var history []int
	cursor := ""
	pageIndex := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		pageIndex++
		page, err := e.fetcher.FetchPage(ctx, q, cursor)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch page %d: %w", pageIndex, err)
		}

		e.dedup.MergePage(page.Records)
		history = append(history, len(page.Records))
		summary.TotalFetched += len(page.Records)
		hasNext := page.NextCursor != ""

		label := progressLabel(history, e.dedup.Len(), hasNext)
		e.logger.Info("page merged",
			"page", pageIndex,
			"fetched", len(page.Records),
			"total_fetched", summary.TotalFetched,
			"unique_so_far", e.dedup.Len(),
			"progress", label,
		)
		e.publish(events.SubjectPageFetched, map[string]any{
			"run_id":        summary.RunID,
			"page":          pageIndex,
			"fetched":       len(page.Records),
			"total_fetched": summary.TotalFetched,
			"unique":        e.dedup.Len(),
			"progress":      label,
		})

		if e.DebugLimit > 0 && e.dedup.Len() >= e.DebugLimit {
			trimmed := e.dedup.Trim(e.DebugLimit)
			e.logger.Info("debug limit reached, stopping pagination",
				"limit", e.DebugLimit, "trimmed", trimmed)
			break
		}

		if !hasNext {
			break
		}
		cursor = page.NextCursor
	}

	survivors := e.dedup.Survivors()

	summary.Pages = pageIndex
	summary.TotalUnique = len(survivors)
	summary.TotalExcluded = e.dedup.TotalExcluded()
	summary.FinishedAt = time.Now().UTC()
	summary.Stats = CalculateStats(survivors)

	e.logger.Info("export finished",
		"run_id", summary.RunID,
		"pages", summary.Pages,
		"total_fetched", summary.TotalFetched,
		"total_unique", summary.TotalUnique,
		"total_excluded", summary.TotalExcluded,
	)
	e.publish(events.SubjectExportCompleted, summary)

	return survivors, summary, nil
}

func (e *Exporter) publish(subject string, data any) {
	if err := e.events.Publish(subject, data); err != nil {
		e.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

// progressLabel renders the completion estimate for logs: a percentage while
// it can be computed, "estimating..." before enough pages have been seen.
func progressLabel(history []int, uniqueSoFar int, hasNext bool) string {
	percent, ok := progress.Estimate(history, uniqueSoFar, hasNext)
	if !ok {
		return "estimating..."
	}
	if percent == 100 {
		return "100% completed"
	}
	return fmt.Sprintf("%d%% complete", percent)
}
