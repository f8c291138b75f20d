package kandilli

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kenet-project/seismic-fusion/internal/domain"
	"github.com/kenet-project/seismic-fusion/internal/observability"
)

// QuakeStore persists official feed records. *store.Store satisfies it.
type QuakeStore interface {
	UpsertOfficialQuakes(ctx context.Context, quakes []domain.OfficialQuake) (int, error)
}

// Poller fetches the feed on a fixed interval and stores new records.
type Poller struct {
	client   *Client
	store    QuakeStore
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewPoller creates a Poller around the feed client.
func NewPoller(client *Client, store QuakeStore, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	return &Poller{
		client:   client,
		store:    store,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run polls until the context is cancelled. The first poll happens
// immediately so a fresh deployment has data without waiting a full
// interval. Poll failures are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("feed poller started", "interval", p.interval)

	p.poll(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("feed poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	quakes, err := p.client.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.metrics.FeedPolls.WithLabelValues("error").Inc()
		p.logger.Error("feed poll failed", "error", err)
		return
	}

	inserted, err := p.store.UpsertOfficialQuakes(ctx, quakes)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.metrics.FeedPolls.WithLabelValues("error").Inc()
		p.logger.Error("feed store failed", "error", err)
		return
	}

	p.metrics.FeedPolls.WithLabelValues("success").Inc()
	if inserted > 0 {
		p.metrics.FeedNewQuakes.Add(float64(inserted))
		p.logger.Info("official earthquakes stored", "new", inserted, "fetched", len(quakes))
	}
}
