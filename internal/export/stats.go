package export

import (
	"log/slog"

	"github.com/edupulse/lsexport/internal/record"
)

// Stats summarizes the exported survivor set.
type Stats struct {
	Conversations int `json:"conversations"`
	UniqueUsers   int `json:"unique_users"`
	UniqueLessons int `json:"unique_lessons"`
}

// CalculateStats counts unique conversations, users and lessons across the
// final record set. Synthetic-keyed records carry no thread_id and do not
// count as conversations.
func CalculateStats(runs []record.Run) Stats {
	threads := map[string]struct{}{}
	users := map[string]struct{}{}
	lessons := map[string]struct{}{}

	for _, run := range runs {
		if id := run.ThreadID(); id != "" {
			threads[id] = struct{}{}
		}
		if u, _ := run["user_id"].(string); u != "" {
			users[u] = struct{}{}
		}
		if l, _ := run["lesson_id"].(string); l != "" {
			lessons[l] = struct{}{}
		}
	}

	return Stats{
		Conversations: len(threads),
		UniqueUsers:   len(users),
		UniqueLessons: len(lessons),
	}
}

// Log writes the export statistics block.
func (s Stats) Log(logger *slog.Logger) {
	logger.Info("export statistics",
		"conversations", s.Conversations,
		"unique_users", s.UniqueUsers,
		"unique_lessons", s.UniqueLessons,
	)
}
