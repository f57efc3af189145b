package sheets

import (
	"context"
	"errors"

	"bilancio/internal/report"
)

// ErrDisabled is returned when no spreadsheet is configured.
var ErrDisabled = errors.New("sheets export not configured")

// Ports for outbound adapters.
type (
	// ReportWriter replaces the contents of the sheet for r's owner and month.
	ReportWriter interface {
		WriteReport(ctx context.Context, r report.Report) (sheetTitle string, err error)
	}
)
