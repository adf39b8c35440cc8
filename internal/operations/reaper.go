package operations

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper bounds registry growth. Terminal operations are evicted once their
// retention window elapses; running operations past the execution ceiling
// are force-failed through the runner's timeout path and evicted after the
// same window. Eviction is strictly time-based; there is no capacity or LRU
// pressure path.
type Reaper struct {
	registry  *Registry
	runner    *Runner
	retention time.Duration
	ceiling   time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type ReaperConfig struct {
	Registry         *Registry
	Runner           *Runner
	RetentionWindow  time.Duration
	ExecutionCeiling time.Duration
	Interval         time.Duration
	Now              func() time.Time
	Logger           *zap.Logger
}

func NewReaper(cfg ReaperConfig) *Reaper {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Reaper{
		registry:  cfg.Registry,
		runner:    cfg.Runner,
		retention: cfg.RetentionWindow,
		ceiling:   cfg.ExecutionCeiling,
		interval:  cfg.Interval,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
}

// Start runs the fixed-interval scan until ctx is cancelled.
func (p *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// sweep applies the eviction policy once over the registry snapshot.
func (p *Reaper) sweep() {
	now := p.now()
	for _, info := range p.registry.snapshot() {
		switch {
		case info.Status.Terminal():
			if now.Sub(info.CompletedAt) > p.retention {
				p.registry.Evict(info.ID)
				p.logger.Info("evicted operation",
					zap.String("operation_id", info.ID),
					zap.String("status", string(info.Status)))
			}
		case now.Sub(info.StartedAt) > p.ceiling:
			// Past the ceiling but still running: force the timeout
			// failure now, evict once the retention window passes.
			p.logger.Warn("forcing timeout on overdue operation",
				zap.String("operation_id", info.ID),
				zap.String("verb", string(info.Verb)))
			p.runner.ForceTimeout(info.ID)
		}
	}
}
