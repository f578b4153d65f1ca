// Package enrich transforms raw LangSmith runs into enriched export records:
// decoded user/lesson ids, per-role message tallies, timing analytics, a
// simplified message sequence and a human-readable transcript.
package enrich

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/edupulse/lsexport/internal/events"
	"github.com/edupulse/lsexport/internal/record"
	"github.com/edupulse/lsexport/internal/thread"
)

// Candidate paths inside a serialized message. First present value wins.
var (
	timestampPaths = [][]string{
		{"kwargs", "additional_kwargs", "timestamp"},
		{"additional_kwargs", "timestamp"},
	}
	contentPaths = [][]string{
		{"kwargs", "content"},
		{"content"},
		{"text"},
	}
)

// SimplifiedMessage is one surviving message of a conversation: it had both
// usable content and a parseable timestamp.
type SimplifiedMessage struct {
	Timestamp                string   `json:"timestamp" bson:"timestamp"`
	Sender                   string   `json:"sender" bson:"sender"`
	Message                  string   `json:"message" bson:"message"`
	TimeSincePreviousSeconds *float64 `json:"time_since_previous_seconds,omitempty" bson:"time_since_previous_seconds,omitempty"`
}

// Enricher derives export fields from raw runs. The clock is injected so
// time_since_last_message_minutes is deterministic in tests.
type Enricher struct {
	now    func() time.Time
	events events.Publisher
	logger *slog.Logger
}

// New creates an enricher using the wall clock.
func New(logger *slog.Logger, sink events.Publisher) *Enricher {
	return NewWithClock(logger, sink, time.Now)
}

// NewWithClock creates an enricher with a substitute clock.
func NewWithClock(logger *slog.Logger, sink events.Publisher, now func() time.Time) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = events.Nop{}
	}
	return &Enricher{now: now, events: sink, logger: logger}
}

// Enrich returns a new record derived from run. The input is never mutated.
// Malformed messages are skipped individually; Enrich always returns a
// best-effort record and never fails.
func (e *Enricher) Enrich(run record.Run) record.Run {
	out := run.Clone()
	if out == nil {
		out = record.Run{}
	}

	threadID := out.ThreadID()
	userID, lessonID := thread.Parse(threadID)
	if userID != "" {
		out["user_id"] = userID
		out["lesson_id"] = lessonID
	} else if threadID != "" {
		e.logger.Debug("could not parse thread_id", "thread_id", threadID)
	}

	msgs, ok := record.DigSlice(out, "outputs", "messages")
	if !ok {
		msgs = nil
	}

	counts := map[string]int{}
	var minTS, maxTS time.Time
	haveTS := false

	for _, m := range msgs {
		msg, _ := m.(map[string]any)
		counts[messageRole(msg)]++

		ts, ok := messageTimestamp(msg)
		if !ok {
			continue
		}
		if !haveTS {
			minTS, maxTS = ts, ts
			haveTS = true
			continue
		}
		if ts.Before(minTS) {
			minTS = ts
		}
		if ts.After(maxTS) {
			maxTS = ts
		}
	}

	out["message_count"] = len(msgs)
	out["user_messages"] = counts["user"]
	out["assistant_messages"] = counts["assistant"]
	out["system_messages"] = counts["system"]

	if haveTS {
		out["first_msg_time"] = minTS.Format(time.RFC3339Nano)
		out["last_msg_time"] = maxTS.Format(time.RFC3339Nano)
		out["total_time_minutes"] = round3(maxTS.Sub(minTS).Minutes())
		out["time_since_last_message_minutes"] = round3(e.now().Sub(maxTS).Minutes())
	}

	simplified, skipped := e.simplify(msgs, threadID)
	if len(simplified) > 0 {
		out["conversation_json"] = map[string]any{"messages": simplified}
		out["conversation_str"] = renderTranscript(out, simplified)
	}
	if skipped > 0 {
		e.publishSkipped(out.ID(), threadID, skipped)
	}

	return out
}

// simplify keeps messages that carry both non-empty content and a parseable
// timestamp, in original order, computing the gap to the previous survivor.
// skipped counts the messages dropped for missing either.
func (e *Enricher) simplify(msgs []any, threadID string) (out []SimplifiedMessage, skipped int) {
	var prev time.Time

	for _, m := range msgs {
		msg, _ := m.(map[string]any)
		content := messageContent(msg)
		ts, tsOK := messageTimestamp(msg)
		if content == "" || !tsOK {
			e.logger.Debug("skipping message without content or timestamp", "thread_id", threadID)
			skipped++
			continue
		}

		sm := SimplifiedMessage{
			Timestamp: ts.Format(time.RFC3339Nano),
			Sender:    messageRole(msg),
			Message:   content,
		}
		if len(out) > 0 {
			delta := round3(ts.Sub(prev).Seconds())
			sm.TimeSincePreviousSeconds = &delta
		}
		out = append(out, sm)
		prev = ts
	}

	return out, skipped
}

// publishSkipped reports that a record's conversation was degraded: some of
// its messages lacked usable content or a parseable timestamp.
func (e *Enricher) publishSkipped(runID, threadID string, skipped int) {
	err := e.events.Publish(events.SubjectRecordSkipped, map[string]any{
		"run_id":           runID,
		"thread_id":        threadID,
		"skipped_messages": skipped,
	})
	if err != nil {
		e.logger.Warn("failed to publish skip event", "error", err)
	}
}

// messageRole classifies a serialized message by the last element of its id
// sequence. SystemMessage maps to system, HumanMessage to user, everything
// else (AIMessage, tool messages, missing ids) to assistant.
func messageRole(msg map[string]any) string {
	ids, ok := record.DigSlice(msg, "id")
	if !ok || len(ids) == 0 {
		return "assistant"
	}
	name, _ := ids[len(ids)-1].(string)
	switch {
	case strings.HasSuffix(name, "SystemMessage"):
		return "system"
	case strings.HasSuffix(name, "HumanMessage"):
		return "user"
	default:
		return "assistant"
	}
}

func messageTimestamp(msg map[string]any) (time.Time, bool) {
	for _, path := range timestampPaths {
		if s, ok := record.DigString(msg, path...); ok {
			return record.ParseTimestamp(s)
		}
	}
	return time.Time{}, false
}

func messageContent(msg map[string]any) string {
	for _, path := range contentPaths {
		if s, ok := record.DigString(msg, path...); ok && s != "" {
			return s
		}
	}
	return ""
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
