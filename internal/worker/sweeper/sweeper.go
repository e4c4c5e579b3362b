// Package sweeper periodically re-evaluates every active lead so time-based
// rules fire without an inbound event: inactive leads are marked dead, follow
// up dates are refreshed, and tick-triggered workflows are offered the lead.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/leadflow/internal/automation"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/lifecycle"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Source is the sweeper's view of the lead store.
type Source interface {
	ListActive(ctx context.Context, afterID string, limit int) ([]*leads.Lead, error)
}

type lifecycleApplier interface {
	Apply(ctx context.Context, lead *leads.Lead, source string) (*leads.Lead, lifecycle.Evaluation, error)
}

type eventHandler interface {
	HandleEvent(ctx context.Context, lead *leads.Lead, event automation.Event) ([]*automation.Run, error)
}

// Result summarizes one pass.
type Result struct {
	Scanned     int `json:"scanned"`
	MarkedDead  int `json:"marked_dead"`
	RunsStarted int `json:"runs_started"`
	Failed      int `json:"failed"`
}

// Sweeper walks active leads page by page.
type Sweeper struct {
	source    Source
	lifecycle lifecycleApplier
	engine    eventHandler
	logger    *logging.Logger
	interval  time.Duration
	batchSize int
}

// New builds a sweeper. engine may be nil when automation is disabled.
func New(source Source, lc lifecycleApplier, engine eventHandler, logger *logging.Logger) *Sweeper {
	if source == nil || lc == nil {
		panic("sweeper: source and lifecycle are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		source:    source,
		lifecycle: lc,
		engine:    engine,
		logger:    logger,
		interval:  15 * time.Minute,
		batchSize: 100,
	}
}

func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Sweeper) WithBatchSize(n int) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Run sweeps immediately and then once per interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("lead sweeper started", "interval", s.interval, "batch_size", s.batchSize)
	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lead sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("lead sweep failed", "error", err, "scanned", res.Scanned)
		return
	}
	s.logger.Info("lead sweep finished",
		"scanned", res.Scanned,
		"marked_dead", res.MarkedDead,
		"runs_started", res.RunsStarted,
		"failed", res.Failed,
	)
}

// RunOnce sweeps every active lead once. Per-lead failures are counted and
// logged; only a failure to list leads aborts the pass.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := s.source.ListActive(ctx, afterID, s.batchSize)
		if err != nil {
			return res, fmt.Errorf("sweeper: list active leads: %w", err)
		}
		for _, lead := range page {
			res.Scanned++
			if err := s.sweepLead(ctx, lead, &res); err != nil {
				res.Failed++
				s.logger.WithLead(lead.OrgID, lead.ID).Error("lead sweep: lead failed", "error", err)
			}
		}
		if len(page) < s.batchSize {
			return res, nil
		}
		afterID = page[len(page)-1].ID
	}
}

func (s *Sweeper) sweepLead(ctx context.Context, lead *leads.Lead, res *Result) error {
	updated, eval, err := s.lifecycle.Apply(ctx, lead, "sweeper")
	if err != nil {
		if errors.Is(err, leads.ErrLeadNotFound) {
			return nil
		}
		return err
	}
	if eval.ShouldMarkDead && updated.IsDead {
		res.MarkedDead++
		return nil
	}
	if s.engine == nil || updated.IsDead {
		return nil
	}
	runs, err := s.engine.HandleEvent(ctx, updated, automation.EventTick)
	res.RunsStarted += len(runs)
	return err
}
