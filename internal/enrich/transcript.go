package enrich

import (
	"fmt"
	"strings"
	"time"

	"github.com/edupulse/lsexport/internal/record"
)

const (
	transcriptRule   = "========================================"
	transcriptFooter = "--- End of conversation ---"
	emptyTranscript  = "--- Empty conversation ---"
)

// renderTranscript builds the human-readable conversation rendering: a header
// block with ids, duration and per-role counts computed from the simplified
// sequence, one block per message, and a footer sentinel.
func renderTranscript(run record.Run, msgs []SimplifiedMessage) string {
	if len(msgs) == 0 {
		return emptyTranscript
	}

	var user, assistant, system int
	for _, m := range msgs {
		switch m.Sender {
		case "user":
			user++
		case "system":
			system++
		default:
			assistant++
		}
	}

	var sb strings.Builder
	sb.WriteString(transcriptRule + "\n")
	fmt.Fprintf(&sb, "Conversation: %s\n", run.ThreadID())
	if userID, _ := run["user_id"].(string); userID != "" {
		lessonID, _ := run["lesson_id"].(string)
		fmt.Fprintf(&sb, "User: %s | Lesson: %s\n", userID, lessonID)
	}
	fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(msgs))
	fmt.Fprintf(&sb, "Messages: %d user, %d assistant, %d system\n", user, assistant, system)
	sb.WriteString(transcriptRule + "\n\n")

	for _, m := range msgs {
		ts, _ := record.ParseTimestamp(m.Timestamp)
		if m.TimeSincePreviousSeconds != nil {
			fmt.Fprintf(&sb, "[%s] %s (+%.1fs):\n", ts.Format("2006-01-02 15:04:05"),
				strings.ToUpper(m.Sender), *m.TimeSincePreviousSeconds)
		} else {
			fmt.Fprintf(&sb, "[%s] %s:\n", ts.Format("2006-01-02 15:04:05"), strings.ToUpper(m.Sender))
		}
		sb.WriteString(m.Message + "\n\n")
	}

	sb.WriteString(transcriptFooter)
	return sb.String()
}

// formatDuration renders the span between the first and last surviving
// message: minutes under an hour, hours otherwise, one decimal place.
func formatDuration(msgs []SimplifiedMessage) string {
	first, _ := record.ParseTimestamp(msgs[0].Timestamp)
	last, _ := record.ParseTimestamp(msgs[len(msgs)-1].Timestamp)
	d := last.Sub(first)
	if d < 0 {
		d = 0
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1f minutes", d.Minutes())
	}
	return fmt.Sprintf("%.1f hours", d.Hours())
}
