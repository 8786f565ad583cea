// Package notify announces finished reports to downstream consumers. The
// pipeline treats a notify failure as the notifying_failed terminal state,
// never as a crash.
package notify

import (
	"context"
	"time"
)

// Message is the report-ready notification payload.
type Message struct {
	RunID          string    `json:"run_id"`
	Period         time.Time `json:"period"`
	SourcesChecked int       `json:"sources_checked"`
	CasesFound     int       `json:"cases_found"`
	FilesProduced  int       `json:"files_produced"`
	// ReportPath is empty when the period produced nothing to report.
	ReportPath string `json:"report_path,omitempty"`
}

// Notifier delivers one report-ready message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop is the Notifier used when notification is disabled.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Message) error {
	return nil
}
