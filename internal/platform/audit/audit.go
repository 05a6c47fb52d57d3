// Package audit records PHI access events: which caller read which
// patient through which vendor. The gateway stores no clinical data, but
// access to it is still auditable. Recording is best-effort; a failed
// write is logged and never fails the request that triggered it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is one PHI access event.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	PatientID  string    `json:"patient_id,omitempty"`
	MRN        string    `json:"mrn,omitempty"`
	Vendor     string    `json:"vendor,omitempty"`
	Action     string    `json:"action"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// RecorderFunc is a function adapter for Recorder.
type RecorderFunc func(ctx context.Context, e Entry) error

func (f RecorderFunc) Record(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// LogRecorder emits entries as structured zerolog events. Used when no
// DATABASE_URL is configured.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(_ context.Context, e Entry) error {
	r.logger.Info().
		Str("type", "phi_access").
		Str("audit_id", e.ID.String()).
		Str("request_id", e.RequestID).
		Str("patient_id", e.PatientID).
		Str("mrn", e.MRN).
		Str("vendor", e.Vendor).
		Str("action", e.Action).
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.StatusCode).
		Str("remote_ip", e.IPAddress).
		Msg("phi access")
	return nil
}
