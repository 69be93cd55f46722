// Package scheduler drives collection rounds on a fixed cadence, appends
// host records to the history store, and publishes every round to the
// hub. It also bootstraps each new subscriber with the stored history and
// one fresh round of its own.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-app/dockdash/internal/broadcast"
	"github.com/vitalis-app/dockdash/internal/collector"
	"github.com/vitalis-app/dockdash/internal/history"
	"github.com/vitalis-app/dockdash/internal/models"
	"github.com/vitalis-app/dockdash/internal/telemetry"
)

// shutdownFlushTimeout bounds the final history flush after cancellation.
const shutdownFlushTimeout = 10 * time.Second

// Config holds the scheduler cadences.
type Config struct {
	Interval      time.Duration
	FlushInterval time.Duration
	RoundTimeout  time.Duration
}

// Scheduler manages periodic collection, history flushing and broadcast.
type Scheduler struct {
	registry *collector.Registry
	history  *history.Store
	hub      *broadcast.Hub
	cfg      Config
	logger   *zap.Logger
	metrics  *telemetry.Metrics

	// roundMu serializes rounds. A tick holds it until its record is
	// appended and published, so a bootstrap snapshot never misses one.
	roundMu sync.Mutex
	// bootRound is shared by bootstraps until the next tick or Interval.
	bootRound   *Round
	bootRoundAt time.Time
}

// Round is the outcome of one collection round. A nil field means that
// collector failed and its event must not be sent.
type Round struct {
	Containers []models.ContainerSnapshot
	Host       *models.HostMetrics
}

// New creates a scheduler and registers its bootstrap handler on hub.
// logger and metrics may be nil.
func New(registry *collector.Registry, store *history.Store, hub *broadcast.Hub, cfg Config, logger *zap.Logger, metrics *telemetry.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		registry: registry,
		history:  store,
		hub:      hub,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
	hub.OnConnect(s.Bootstrap)
	return s
}

// Start runs the collection and flush loops. It blocks until the context
// is cancelled, then flushes the history one last time.
func (s *Scheduler) Start(ctx context.Context) {
	collectTicker := time.NewTicker(s.cfg.Interval)
	flushTicker := time.NewTicker(s.cfg.FlushInterval)

	defer collectTicker.Stop()
	defer flushTicker.Stop()

	// Do an initial round immediately
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			_ = s.history.Flush(flushCtx)
			cancel()
			return
		case <-collectTicker.C:
			s.tick(ctx)
		case <-flushTicker.C:
			_ = s.history.Flush(ctx)
		}
	}
}

// tick runs one round, records the host sample and broadcasts both events.
// time.Ticker drops ticks that arrive while a round is still running.
func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()

	s.roundMu.Lock()
	round := s.collectLocked(ctx)
	s.bootRound = nil
	if round.Containers != nil {
		s.publish(models.EventContainers, round.Containers)
	}
	if round.Host != nil {
		s.history.Append(*round.Host)
		s.publish(models.EventSystemStats, round.Host)
	}
	s.roundMu.Unlock()

	elapsed := time.Since(start)
	if overrun := int(elapsed / s.cfg.Interval); overrun > 0 {
		for i := 0; i < overrun; i++ {
			s.metrics.TickSkipped()
		}
		s.logger.Warn("Collection round overran the interval",
			zap.Duration("elapsed", elapsed),
			zap.Int("skipped_ticks", overrun))
	}
}

// Collect runs both collectors once under the round timeout. Rounds are
// serialized; a concurrent caller waits for the running round to finish.
func (s *Scheduler) Collect(ctx context.Context) Round {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	return s.collectLocked(ctx)
}

func (s *Scheduler) collectLocked(ctx context.Context) Round {
	roundCtx, cancel := context.WithTimeout(ctx, s.cfg.RoundTimeout)
	defer cancel()

	results := s.registry.CollectAll(roundCtx)

	var round Round
	if data, ok := results[collector.NameContainers]; ok {
		if containers, ok := data.([]models.ContainerSnapshot); ok {
			round.Containers = containers
			if round.Containers == nil {
				round.Containers = []models.ContainerSnapshot{}
			}
		}
	}
	if data, ok := results[collector.NameHost]; ok {
		if host, ok := data.(models.HostMetrics); ok {
			round.Host = &host
		}
	}

	s.logger.Debug("Collected round",
		zap.Bool("containers", round.Containers != nil),
		zap.Bool("host", round.Host != nil))
	return round
}

// Bootstrap sends the stored history followed by one fresh round to sub
// only, then activates sub on the hub. The fresh host record is not
// appended to the history. Subscribers connecting between two ticks share
// one bootstrap round, so a connection burst costs at most one extra round
// per interval.
func (s *Scheduler) Bootstrap(sub *broadcast.Subscriber) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	if err := sub.Send(models.EventInitHistory, s.history.All()); err != nil {
		s.logger.Warn("Failed to send history", zap.Uint64("subscriber", sub.ID()), zap.Error(err))
		return
	}

	if s.bootRound == nil || time.Since(s.bootRoundAt) >= s.cfg.Interval {
		round := s.collectLocked(context.Background())
		s.bootRound = &round
		s.bootRoundAt = time.Now()
	}
	round := s.bootRound

	if round.Containers != nil {
		s.send(sub, models.EventContainers, round.Containers)
	}
	if round.Host != nil {
		s.send(sub, models.EventSystemStats, round.Host)
	}

	// Still under roundMu: the next tick's broadcast is the first one sub sees.
	s.hub.Activate(sub)
}

func (s *Scheduler) publish(event string, payload interface{}) {
	if err := s.hub.Publish(event, payload); err != nil {
		s.logger.Error("Failed to publish", zap.String("event", event), zap.Error(err))
	}
}

func (s *Scheduler) send(sub *broadcast.Subscriber, event string, payload interface{}) {
	if err := sub.Send(event, payload); err != nil {
		s.logger.Warn("Failed to send",
			zap.Uint64("subscriber", sub.ID()),
			zap.String("event", event),
			zap.Error(err))
	}
}
