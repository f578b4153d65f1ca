// Package events carries structured pipeline events (page fetched, duplicate
// excluded, record skipped, export completed) to an external observer. The
// core stays testable by depending only on the Publisher interface; the NATS
// client is the production implementation.
package events

// Subjects published during an export run.
const (
	SubjectExportStarted     = "lsexport.export.started"
	SubjectPageFetched       = "lsexport.export.page"
	SubjectDuplicateExcluded = "lsexport.export.duplicate_excluded"
	SubjectRecordSkipped     = "lsexport.export.record_skipped"
	SubjectExportCompleted   = "lsexport.export.completed"
)

// Publisher receives structured events from the pipeline.
type Publisher interface {
	Publish(subject string, data any) error
}

// Nop discards all events. Used when no event broker is configured.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }
