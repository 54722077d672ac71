package domain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweepPageSize = 100

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Scanned  int
	Overdue  int
	Alerted  int
	Failures int
	// Skipped counts overdue sessions that were checked in, ended or
	// escalated between the scan and the report.
	Skipped int
}

// Sweeper detects overdue check-ins and reports them as the system actor.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper runs service's missed check-in path every interval.
func NewSweeper(service *Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps on every tick until ctx is done. A non-positive interval
// disables the loop.
func (w *Sweeper) Run(ctx context.Context) error {
	if w == nil || w.service == nil || w.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := w.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("missed check-in sweep", zap.Error(err))
				continue
			}
			if report.Alerted > 0 || report.Failures > 0 {
				w.logger.Info("missed check-in sweep",
					zap.Int("scanned", report.Scanned),
					zap.Int("overdue", report.Overdue),
					zap.Int("alerted", report.Alerted),
					zap.Int("skipped", report.Skipped),
					zap.Int("failures", report.Failures),
				)
			}
		}
	}
}

// SweepOnce scans every active session once. Alerts already raised for the
// current check-in window are not counted again.
func (w *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	if err := w.service.ready(); err != nil {
		return report, err
	}
	now := w.service.now()
	afterID := ""
	for {
		sessions, err := w.service.store.ListActiveSessions(ctx, afterID, sweepPageSize)
		if err != nil {
			return report, err
		}
		for _, session := range sessions {
			report.Scanned++
			if !session.Overdue(now) {
				continue
			}
			report.Overdue++
			result, err := w.service.ReportMissedCheckIn(ctx, session.ID, SystemActorID)
			if err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failures++
				w.logger.Warn("report missed check-in", zap.String("session_id", session.ID), zap.Error(err))
				continue
			}
			switch {
			case result.NotOverdue:
				report.Skipped++
			case !result.Duplicate:
				report.Alerted++
			}
		}
		if len(sessions) < sweepPageSize {
			return report, nil
		}
		afterID = sessions[len(sessions)-1].ID
	}
}
