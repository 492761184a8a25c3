// Package reports records emergency reports filed through the dialog for the
// responder dashboard. The store is append-mostly: the dialog files a report
// at dispatch time and the admin surface reads them back newest-first.
package reports

import (
	"context"
	"errors"
	"time"
)

// Report is one filed emergency.
type Report struct {
	Reference   string    `json:"reference"`
	SessionID   string    `json:"session_id"`
	PhoneNumber string    `json:"phone_number"`
	AlertType   string    `json:"alert_type"`
	Location    string    `json:"location"`
	Notified    int       `json:"notified"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusPending is the initial status of a filed report.
const StatusPending = "pending"

// ErrReportNotFound indicates no report exists for the reference.
var ErrReportNotFound = errors.New("reports: report not found")

// Store persists emergency reports. Implementations MUST be safe for
// concurrent use.
type Store interface {
	// Put persists the report under its reference.
	Put(ctx context.Context, r *Report) error
	// Get returns the report for a reference, or ErrReportNotFound.
	Get(ctx context.Context, reference string) (*Report, error)
	// List returns all reports, newest first.
	List(ctx context.Context) ([]*Report, error)
}
