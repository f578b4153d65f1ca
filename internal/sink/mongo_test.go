package sink

import (
	"testing"
	"time"

	"github.com/edupulse/lsexport/internal/record"
)

func TestPrepareDocument_ConvertsTimestamps(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	run := record.Run{
		"thread_id":      "u1-l1",
		"start_time":     "2024-01-01T10:00:00Z",
		"first_msg_time": "2024-01-01T10:00:00Z",
		"last_msg_time":  "not-a-time",
	}

	doc := prepareDocument(run, now)

	if ts, ok := doc["start_time"].(time.Time); !ok || !ts.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected start_time converted to time.Time, got %T %v", doc["start_time"], doc["start_time"])
	}
	if _, ok := doc["first_msg_time"].(time.Time); !ok {
		t.Error("expected first_msg_time converted to time.Time")
	}
	// Unparseable timestamps stay as strings rather than being dropped.
	if s, ok := doc["last_msg_time"].(string); !ok || s != "not-a-time" {
		t.Errorf("expected unparseable timestamp kept verbatim, got %v", doc["last_msg_time"])
	}
}

func TestPrepareDocument_SetsMongoMetadata(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	doc := prepareDocument(record.Run{"thread_id": "u1-l1"}, now)

	if ts, ok := doc["mongo_updated_at"].(time.Time); !ok || !ts.Equal(now) {
		t.Errorf("expected mongo_updated_at %v, got %v", now, doc["mongo_updated_at"])
	}
	if ts, ok := doc["mongo_created_at"].(time.Time); !ok || !ts.Equal(now) {
		t.Errorf("expected mongo_created_at defaulted to now, got %v", doc["mongo_created_at"])
	}
}

func TestPrepareDocument_DoesNotMutateRun(t *testing.T) {
	run := record.Run{
		"thread_id":  "u1-l1",
		"start_time": "2024-01-01T10:00:00Z",
	}

	prepareDocument(run, time.Now())

	if _, ok := run["mongo_updated_at"]; ok {
		t.Error("prepareDocument mutated the source run")
	}
	if _, ok := run["start_time"].(string); !ok {
		t.Error("prepareDocument converted timestamps on the source run")
	}
}
