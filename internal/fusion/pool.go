package fusion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kenet-project/seismic-fusion/internal/domain"
	"github.com/kenet-project/seismic-fusion/internal/observability"
)

// Pool runs analyses on a fixed set of workers fed by a bounded queue.
// Ingest never blocks on fusion: when the queue is full the trigger is
// dropped and counted, and the signal stays in the store for the next
// trigger in the same area to pick up.
type Pool struct {
	engine  *Engine
	queue   chan domain.Signal
	workers int
	ready   atomic.Bool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPool creates a Pool with the given worker count and queue capacity.
func NewPool(engine *Engine, workers, queueSize int, logger *slog.Logger, metrics *observability.Metrics) *Pool {
	return &Pool{
		engine:  engine,
		queue:   make(chan domain.Signal, queueSize),
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

// Enqueue schedules an analysis for the signal. Returns false when the
// queue is full.
func (p *Pool) Enqueue(sig domain.Signal) bool {
	select {
	case p.queue <- sig:
		p.metrics.QueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		p.metrics.FusionDropped.Inc()
		p.logger.Warn("fusion queue full, dropping trigger", "device_id", sig.DeviceID)
		return false
	}
}

// Run starts the workers and blocks until the context is cancelled and
// all in-flight analyses finish. Queued triggers are discarded on
// shutdown.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("fusion pool started", "workers", p.workers, "queue_size", cap(p.queue))
	p.ready.Store(true)
	defer p.ready.Store(false)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}
	wg.Wait()
	p.logger.Info("fusion pool stopped")
	return nil
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-p.queue:
			p.metrics.QueueDepth.Set(float64(len(p.queue)))
			if _, err := p.engine.Analyze(ctx, sig); err != nil && ctx.Err() == nil {
				p.logger.Error("analysis failed", "error", err, "device_id", sig.DeviceID)
			}
		}
	}
}

// CheckReadiness returns nil once the workers are running.
func (p *Pool) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("fusion pool is not running")
	}
	return nil
}
