// Package scheduler runs the configured monitor targets on a fixed
// interval and keeps the latest result of each.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smash64-online/netcheck/internal/checker"
	"github.com/smash64-online/netcheck/internal/config"
	"github.com/smash64-online/netcheck/internal/events"
	"github.com/smash64-online/netcheck/internal/util"
)

// Runner runs a single check.
type Runner interface {
	Run(ctx context.Context, kind events.CheckKind, req checker.Request) checker.Result
}

// TargetStatus is the latest outcome for a monitor target.
type TargetStatus struct {
	Target    config.MonitorTarget `json:"target"`
	Result    checker.Result       `json:"result"`
	CheckedAt time.Time            `json:"checked_at"`
}

// Scheduler periodically checks the monitor targets.
type Scheduler struct {
	cfg      config.MonitorConfig
	runner   Runner
	eventBus *events.EventBus
	logger   zerolog.Logger

	mu   sync.RWMutex
	last map[string]TargetStatus
}

// NewScheduler creates a scheduler. eventBus may be nil.
func NewScheduler(cfg config.MonitorConfig, runner Runner, eventBus *events.EventBus) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		eventBus: eventBus,
		logger:   util.ComponentLogger("scheduler"),
		last:     make(map[string]TargetStatus),
	}
}

// Start runs a round immediately and then once per interval until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.cfg.Interval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.logger.Info().
		Int("targets", len(s.cfg.Targets)).
		Dur("interval", interval).
		Msg("scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce checks every target concurrently and waits for all of them.
func (s *Scheduler) RunOnce(ctx context.Context) events.MonitorTickPayload {
	var wg sync.WaitGroup
	var mu sync.Mutex
	tick := events.MonitorTickPayload{Targets: len(s.cfg.Targets)}

	for _, target := range s.cfg.Targets {
		kind, ok := events.ParseCheckKind(target.Kind)
		if !ok {
			s.logger.Warn().Str("kind", target.Kind).Str("host", target.Host).Msg("skipping target with unknown check kind")
			mu.Lock()
			tick.Failed++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(target config.MonitorTarget) {
			defer wg.Done()
			result := s.runner.Run(ctx, kind, checker.Request{
				Host: target.Host,
				Port: target.Port,
				Via:  "monitor",
			})

			s.mu.Lock()
			s.last[TargetKey(target)] = TargetStatus{Target: target, Result: result, CheckedAt: time.Now()}
			s.mu.Unlock()

			if !result.Success {
				mu.Lock()
				tick.Failed++
				mu.Unlock()
				s.logger.Warn().
					Str("target", TargetKey(target)).
					Str("message", result.Message).
					Msg("monitor target failed")
			}
		}(target)
	}
	wg.Wait()

	if s.eventBus != nil {
		s.eventBus.Emit(ctx, events.NewEvent(events.EventMonitorTick, "scheduler", tick))
	}
	return tick
}

// Status returns the latest result of every checked target.
func (s *Scheduler) Status() []TargetStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TargetStatus, 0, len(s.last))
	for _, target := range s.cfg.Targets {
		if st, ok := s.last[TargetKey(target)]; ok {
			out = append(out, st)
		}
	}
	return out
}

// TargetKey identifies a target in logs and status output.
func TargetKey(t config.MonitorTarget) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("%s/%s:%d", t.Kind, t.Host, t.Port)
}
