package workers

import (
	"context"
	"fmt"
	"log/slog"
)

// ReservationSweeper is the narrow surface of reservation.Service the sweep
// job needs.
type ReservationSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ReservationSweepJob releases expired file reservations on a steady
// interval.
type ReservationSweepJob struct {
	svc    ReservationSweeper
	logger *slog.Logger
}

func NewReservationSweepJob(svc ReservationSweeper, logger *slog.Logger) *ReservationSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReservationSweepJob{svc: svc, logger: logger}
}

func (j *ReservationSweepJob) Name() string { return "reservation_sweep" }

func (j *ReservationSweepJob) Run(ctx context.Context) error {
	released, err := j.svc.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("reservation sweep: %w", err)
	}
	if released > 0 {
		j.logger.Info("reservation sweep released expired reservations", "count", released)
	}
	return nil
}
