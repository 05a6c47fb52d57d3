package middleware

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/ehr-gateway/internal/platform/audit"
)

// Audit returns echo middleware that records PHI access for every
// /patient route. The handler runs first so the entry captures the final
// response status. Recording failures are logged and swallowed; audit
// must never break a clinical lookup.
func Audit(logger zerolog.Logger, recorder audit.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, "/patient") {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			entry := audit.Entry{
				ID:         uuid.New(),
				Timestamp:  time.Now().UTC(),
				PatientID:  c.Param("id"),
				MRN:        c.Param("mrn"),
				Vendor:     c.Param("vendor"),
				Action:     actionFor(c),
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: c.Response().Status,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if recErr := recorder.Record(req.Context(), entry); recErr != nil {
				logger.Error().Err(recErr).
					Str("request_id", entry.RequestID).
					Msg("failed to record audit entry")
			}

			return err
		}
	}
}

func actionFor(c echo.Context) string {
	switch {
	case strings.HasSuffix(c.Path(), "/search"):
		return "search"
	case strings.HasSuffix(c.Path(), "/display"):
		return "display"
	default:
		return "read"
	}
}
