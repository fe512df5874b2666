// Package sweeper runs the scheduled book-keeping: the maturity sweep
// stamps overdue accounts and the reconciliation sweep repairs ledger
// drift. Both jobs run on cron schedules in the business time zone and can
// be triggered on demand through the ops endpoint.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"khata/pkg/requestcontext"
)

// AccountSweep marks overdue accounts matured.
type AccountSweep interface {
	MatureDue(ctx context.Context, now time.Time) (int, error)
}

// LedgerSweep re-derives stored account figures from the deposit history.
type LedgerSweep interface {
	RepairDrift(ctx context.Context) (int, error)
}

// Config carries the schedules and the business clock.
type Config struct {
	// Location is the zone in which schedules fire and sweep instants are
	// reckoned. Nil means UTC.
	Location *time.Location
	// MaturitySchedule and DriftSchedule are standard five-field cron
	// expressions.
	MaturitySchedule string
	DriftSchedule    string
	// RunTimeout bounds a single sweep pass.
	RunTimeout time.Duration
}

const defaultRunTimeout = 5 * time.Minute

// Sweeper owns the cron runner and the sweep entry points.
type Sweeper struct {
	accounts AccountSweep
	ledger   LedgerSweep
	logger   *slog.Logger

	cron *cron.Cron
	cfg  Config
}

// New builds a sweeper. Schedules are registered on Start.
func New(accounts AccountSweep, ledger LedgerSweep, cfg Config, logger *slog.Logger) *Sweeper {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	runner := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Sweeper{
		accounts: accounts,
		ledger:   ledger,
		logger:   logger,
		cron:     runner,
		cfg:      cfg,
	}
}

// Start registers both schedules and starts the clock.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.MaturitySchedule, func() {
		_, _ = s.runMaturity(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule maturity sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.DriftSchedule, func() {
		_, _ = s.runDrift(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule drift sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started",
		"maturity_schedule", s.cfg.MaturitySchedule,
		"drift_schedule", s.cfg.DriftSchedule,
		"timezone", s.cfg.Location.String(),
	)
	return nil
}

// Stop stops the scheduler. The returned context is done once any running
// job has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Result reports one full sweep pass.
type Result struct {
	Matured  int `json:"matured"`
	Repaired int `json:"repaired"`
}

// RunNow runs both sweeps back to back. The ops trigger calls this.
func (s *Sweeper) RunNow(ctx context.Context) (Result, error) {
	matured, err := s.runMaturity(ctx)
	if err != nil {
		return Result{}, err
	}
	repaired, err := s.runDrift(ctx)
	if err != nil {
		return Result{Matured: matured}, err
	}
	return Result{Matured: matured, Repaired: repaired}, nil
}

// sweepContext pins the pass to one business-clock instant so every account
// in the pass is reckoned against the same day and month.
func (s *Sweeper) sweepContext(parent context.Context) (context.Context, context.CancelFunc) {
	now := time.Now().In(s.cfg.Location)
	return context.WithTimeout(requestcontext.WithTime(parent, now), s.cfg.RunTimeout)
}

func (s *Sweeper) runMaturity(parent context.Context) (int, error) {
	ctx, cancel := s.sweepContext(parent)
	defer cancel()

	matured, err := s.accounts.MatureDue(ctx, requestcontext.Now(ctx))
	if err != nil {
		s.logger.ErrorContext(ctx, "maturity sweep failed", "error", err.Error())
		return 0, err
	}
	s.logger.InfoContext(ctx, "maturity sweep finished", "accounts_matured", matured)
	return matured, nil
}

func (s *Sweeper) runDrift(parent context.Context) (int, error) {
	ctx, cancel := s.sweepContext(parent)
	defer cancel()

	repaired, err := s.ledger.RepairDrift(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "reconciliation sweep failed", "error", err.Error())
		return 0, err
	}
	s.logger.InfoContext(ctx, "reconciliation sweep finished", "accounts_repaired", repaired)
	return repaired, nil
}
