package export

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edupulse/lsexport/internal/dedup"
	"github.com/edupulse/lsexport/internal/enrich"
	"github.com/edupulse/lsexport/internal/events"
	"github.com/edupulse/lsexport/internal/langsmith"
	"github.com/edupulse/lsexport/internal/record"
)

// fakeFetcher serves a fixed sequence of pages; the last page has no cursor.
type fakeFetcher struct {
	pages [][]record.Run
	calls int
	fail  error
}

func (f *fakeFetcher) FetchPage(_ context.Context, _ langsmith.Query, cursor string) (*langsmith.Page, error) {
	if f.fail != nil && f.calls == len(f.pages) {
		f.calls++
		return nil, f.fail
	}
	page := f.pages[f.calls]
	f.calls++
	next := ""
	if f.calls < len(f.pages) || f.fail != nil {
		next = "next"
	}
	return &langsmith.Page{Records: page, NextCursor: next}, nil
}

// recorder collects published events for assertions.
type recorder struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recorder) Publish(subject string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func (r *recorder) count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

func newExporter(f Fetcher, sink events.Publisher) *Exporter {
	enricher := enrich.NewWithClock(slog.Default(), sink, func() time.Time {
		return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	})
	return New(f, dedup.New(enricher, sink, slog.Default()), sink, slog.Default())
}

func run(id, threadID, startTime string) record.Run {
	r := record.Run{"id": id, "start_time": startTime}
	if threadID != "" {
		r["thread_id"] = threadID
	}
	return r
}

func TestRun_DeduplicatesAcrossPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: [][]record.Run{
		{run("r1", "u1-l1", "2024-01-01T00:00:00Z")},
		{run("r2", "u1-l1", "2024-01-01T01:00:00Z")},
	}}

	survivors, summary, err := newExporter(fetcher, nil).Run(context.Background(), langsmith.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.TotalFetched != 2 {
		t.Errorf("expected total_fetched 2, got %d", summary.TotalFetched)
	}
	if summary.TotalUnique != 1 {
		t.Errorf("expected total_unique 1, got %d", summary.TotalUnique)
	}
	if summary.TotalExcluded != 1 {
		t.Errorf("expected 1 excluded duplicate, got %d", summary.TotalExcluded)
	}
	if summary.Pages != 2 {
		t.Errorf("expected 2 pages, got %d", summary.Pages)
	}

	s := survivors[0]
	if s["user_id"] != "u1" || s["lesson_id"] != "l1" {
		t.Errorf("expected decoded ids on survivor, got user_id=%v lesson_id=%v", s["user_id"], s["lesson_id"])
	}
	if s.StartTime() != "2024-01-01T01:00:00Z" {
		t.Errorf("expected page-2 start_time to survive, got %s", s.StartTime())
	}
}

func TestRun_MissingThreadIDSurvivesUnderSyntheticKey(t *testing.T) {
	fetcher := &fakeFetcher{pages: [][]record.Run{
		{
			run("r9", "", "2024-01-01T00:00:00Z"),
			run("r1", "u1-l1", "2024-01-01T00:00:00Z"),
		},
	}}

	survivors, summary, err := newExporter(fetcher, nil).Run(context.Background(), langsmith.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalUnique != 2 {
		t.Fatalf("expected 2 unique records, got %d", summary.TotalUnique)
	}

	found := false
	for _, s := range survivors {
		if s.ID() == "r9" {
			found = true
			if s.ThreadID() != "" {
				t.Errorf("synthetic-keyed record should keep empty thread_id, got %q", s.ThreadID())
			}
		}
	}
	if !found {
		t.Error("record without thread_id was dropped")
	}
}

func TestRun_DebugLimitTrimsSurvivors(t *testing.T) {
	fetcher := &fakeFetcher{pages: [][]record.Run{
		{
			run("r1", "u1-l1", "2024-01-01T00:00:00Z"),
			run("r2", "u2-l1", "2024-01-01T00:00:00Z"),
			run("r3", "u3-l1", "2024-01-01T00:00:00Z"),
		},
		{run("r4", "u4-l1", "2024-01-01T00:00:00Z")},
	}}

	e := newExporter(fetcher, nil)
	e.DebugLimit = 2
	survivors, summary, err := e.Run(context.Background(), langsmith.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(survivors) != 2 {
		t.Fatalf("expected survivors trimmed to 2, got %d", len(survivors))
	}
	if fetcher.calls != 1 {
		t.Errorf("expected pagination to stop after the cap, got %d fetches", fetcher.calls)
	}
	// Deterministic trim: head of the key-sorted view survives.
	if survivors[0].ThreadID() != "u1-l1" || survivors[1].ThreadID() != "u2-l1" {
		t.Errorf("unexpected trimmed set: %s, %s", survivors[0].ThreadID(), survivors[1].ThreadID())
	}
	if summary.TotalUnique != 2 {
		t.Errorf("expected total_unique 2 after trim, got %d", summary.TotalUnique)
	}
}

func TestRun_TransportFailureIsFatalWithPageIndex(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: [][]record.Run{{run("r1", "u1-l1", "2024-01-01T00:00:00Z")}},
		fail:  errors.New("boom"),
	}

	_, _, err := newExporter(fetcher, nil).Run(context.Background(), langsmith.Query{})
	if err == nil {
		t.Fatal("expected transport failure to abort the export")
	}
	if !strings.Contains(err.Error(), "page 2") {
		t.Errorf("expected error to name the failed page index, got %v", err)
	}
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{pages: [][]record.Run{{}}}
	_, _, err := newExporter(fetcher, nil).Run(ctx, langsmith.Query{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_PublishesEvents(t *testing.T) {
	sink := &recorder{}
	fetcher := &fakeFetcher{pages: [][]record.Run{
		{run("r1", "u1-l1", "2024-01-01T00:00:00Z")},
		{run("r2", "u1-l1", "2024-01-01T01:00:00Z")},
	}}

	_, _, err := newExporter(fetcher, sink).Run(context.Background(), langsmith.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.count(events.SubjectExportStarted) != 1 {
		t.Error("expected one export started event")
	}
	if sink.count(events.SubjectPageFetched) != 2 {
		t.Errorf("expected two page events, got %d", sink.count(events.SubjectPageFetched))
	}
	if sink.count(events.SubjectDuplicateExcluded) != 1 {
		t.Errorf("expected one duplicate event, got %d", sink.count(events.SubjectDuplicateExcluded))
	}
	if sink.count(events.SubjectExportCompleted) != 1 {
		t.Error("expected one export completed event")
	}
}

func TestRun_SummaryStats(t *testing.T) {
	fetcher := &fakeFetcher{pages: [][]record.Run{
		{
			run("r1", "u1-l1", "2024-01-01T00:00:00Z"),
			run("r2", "u1-l2", "2024-01-01T00:00:00Z"),
			run("r3", "u2-l1", "2024-01-01T00:00:00Z"),
		},
	}}

	_, summary, err := newExporter(fetcher, nil).Run(context.Background(), langsmith.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Stats.Conversations != 3 {
		t.Errorf("expected 3 conversations, got %d", summary.Stats.Conversations)
	}
	if summary.Stats.UniqueUsers != 2 {
		t.Errorf("expected 2 unique users, got %d", summary.Stats.UniqueUsers)
	}
	if summary.Stats.UniqueLessons != 2 {
		t.Errorf("expected 2 unique lessons, got %d", summary.Stats.UniqueLessons)
	}
	if summary.RunID == "" {
		t.Error("expected a run id")
	}
}
