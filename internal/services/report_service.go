package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/report"
	"bilancio/internal/sheets"
)

type reportStore interface {
	ListTransactions(ctx context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error)
	UserByID(ctx context.Context, id uuid.UUID) (core.User, error)
}

// ReportService builds monthly reports and exports them to Sheets.
type ReportService struct {
	store  reportStore
	writer sheets.ReportWriter
}

// NewReportService accepts a nil writer when Sheets export is not configured.
func NewReportService(store reportStore, writer sheets.ReportWriter) *ReportService {
	return &ReportService{store: store, writer: writer}
}

func (s *ReportService) SheetsEnabled() bool { return s.writer != nil }

// Build returns the report of the signed-in owner for month.
func (s *ReportService) Build(ctx context.Context, month core.MonthKey) (report.Report, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return report.Report{}, err
	}
	return s.BuildFor(ctx, owner, month)
}

// BuildFor is Build for an explicit owner, used by background jobs.
func (s *ReportService) BuildFor(ctx context.Context, owner uuid.UUID, month core.MonthKey) (report.Report, error) {
	if err := month.Validate(); err != nil {
		return report.Report{}, err
	}
	ts, err := s.store.ListTransactions(ctx, owner, core.MonthPeriod(month))
	if err != nil {
		return report.Report{}, fmt.Errorf("list transactions: %w", err)
	}
	r := report.Build(month, ts)
	u, err := s.store.UserByID(ctx, owner)
	switch {
	case err == nil:
		r.Owner = u.Email
	case errors.Is(err, core.ErrNotFound):
		slog.WarnContext(ctx, "Report owner not found, omitting from title",
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldOwnerID, owner)
	default:
		return report.Report{}, fmt.Errorf("lookup owner: %w", err)
	}
	return r, nil
}

// Export writes the signed-in owner's report to Sheets and returns the sheet title.
func (s *ReportService) Export(ctx context.Context, month core.MonthKey) (string, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return "", err
	}
	return s.ExportFor(ctx, owner, month)
}

func (s *ReportService) ExportFor(ctx context.Context, owner uuid.UUID, month core.MonthKey) (string, error) {
	if s.writer == nil {
		return "", sheets.ErrDisabled
	}
	r, err := s.BuildFor(ctx, owner, month)
	if err != nil {
		return "", err
	}
	title, err := s.writer.WriteReport(ctx, r)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	slog.InfoContext(ctx, "Report exported",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldOwnerID, owner,
		applog.FieldMonth, month.String(),
		"sheet", title,
		"rows", len(r.Rows))
	return title, nil
}
