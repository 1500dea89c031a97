package sessions

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule runs the idle sweep every five minutes.
const DefaultSweepSchedule = "@every 5m"

// Sweeper runs the registry's idle sweep on a fixed schedule, independently
// of request handling.
type Sweeper struct {
	registry *Registry
	cron     *cron.Cron
	logger   zerolog.Logger

	// OnEvict receives the ids of the sessions each sweep evicted. Set it
	// before Start; the turn queue hooks in here to drop the evicted lanes.
	OnEvict func(ids []string)
}

// NewSweeper creates a sweeper for the registry. An empty schedule falls back
// to DefaultSweepSchedule.
func NewSweeper(registry *Registry, schedule string, logger zerolog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s := &Sweeper{
		registry: registry,
		cron:     cron.New(),
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) sweep() {
	evicted := s.registry.Sweep()
	if s.OnEvict != nil && len(evicted) > 0 {
		s.OnEvict(evicted)
	}
}

// Start begins the sweep schedule in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Session sweep started")
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Session sweep stopped")
}
