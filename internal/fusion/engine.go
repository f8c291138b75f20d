// Package fusion decides whether a burst of device signals is a real
// earthquake. Each analysis run is triggered by one incoming signal and
// walks a fixed sequence: realism check, spatial-temporal clustering,
// population sizing, quorum, then deduplicated event creation.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kenet-project/seismic-fusion/internal/domain"
	"github.com/kenet-project/seismic-fusion/internal/observability"
)

// Outcome is the terminal state of one analysis run.
type Outcome string

const (
	// OutcomeRejected means the trigger signal failed the realism check.
	OutcomeRejected Outcome = "rejected"
	// OutcomeNoQuorum means the cluster did not reach the confirmation
	// threshold for the local population.
	OutcomeNoQuorum Outcome = "no_quorum"
	// OutcomeConfirmed means quorum was reached and an event exists
	// (newly created or reused from the dedup guard).
	OutcomeConfirmed Outcome = "confirmed"
)

// Result summarizes one analysis run. Event is zero unless the outcome
// is confirmed.
type Result struct {
	Outcome      Outcome
	Event        domain.DetectedEvent
	EventCreated bool
	SignalCount  int
	Population   int
}

// SignalStore provides the queries the engine needs. *store.Store
// satisfies it.
type SignalStore interface {
	SignalsNear(ctx context.Context, lat, lng, radiusKm float64, window time.Duration) ([]domain.Signal, error)
	ActiveNearby(ctx context.Context, lat, lng, radiusKm float64, recency time.Duration) (int, error)
	RecordOrReuseEvent(ctx context.Context, candidate domain.DetectedEvent, radiusKm float64, cooldown time.Duration) (domain.DetectedEvent, bool, error)
}

// AlertPublisher fans a newly confirmed event out to subscribers.
type AlertPublisher interface {
	PublishEvent(ctx context.Context, event domain.DetectedEvent) error
}

// Params are the tunable knobs of the analysis sequence.
type Params struct {
	ClusterRadiusKm   float64
	FusionWindow      time.Duration
	DedupRadiusKm     float64
	DedupCooldown     time.Duration
	PopulationRecency time.Duration
	Quorum            domain.QuorumPolicy
}

// Engine runs analyses against the store. Safe for concurrent use.
type Engine struct {
	store     SignalStore
	publisher AlertPublisher // nil when alerting is disabled
	params    Params
	locks     *geoLock
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewEngine creates an Engine. publisher may be nil.
func NewEngine(store SignalStore, publisher AlertPublisher, params Params, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		store:     store,
		publisher: publisher,
		params:    params,
		locks:     newGeoLock(),
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Analyze runs the full sequence for one trigger signal. The signal is
// assumed to be already recorded, so the cluster query sees it. An error
// means the run could not complete; partial conclusions are not reported.
func (e *Engine) Analyze(ctx context.Context, sig domain.Signal) (Result, error) {
	start := e.clock.Now()
	res, err := e.analyze(ctx, sig)
	e.metrics.FusionDuration.Observe(e.clock.Since(start).Seconds())

	if err != nil {
		e.metrics.FusionRuns.WithLabelValues("failed").Inc()
		return Result{}, err
	}
	e.metrics.FusionRuns.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (e *Engine) analyze(ctx context.Context, sig domain.Signal) (Result, error) {
	if e.params.Quorum.ExceedsCeiling(sig.PGA) {
		e.logger.Debug("signal rejected by realism ceiling",
			"device_id", sig.DeviceID, "pga", sig.PGA)
		return Result{Outcome: OutcomeRejected}, nil
	}

	signals, err := e.store.SignalsNear(ctx, sig.Lat, sig.Lng, e.params.ClusterRadiusKm, e.params.FusionWindow)
	if err != nil {
		return Result{}, fmt.Errorf("cluster query: %w", err)
	}

	stats := domain.Aggregate(signals)
	if !stats.Defined() {
		// The trigger signal should be in its own cluster; an empty
		// result means it aged out between recording and analysis.
		return Result{Outcome: OutcomeNoQuorum}, nil
	}

	population, err := e.store.ActiveNearby(ctx, sig.Lat, sig.Lng, e.params.ClusterRadiusKm, e.params.PopulationRecency)
	if err != nil {
		return Result{}, fmt.Errorf("population query: %w", err)
	}

	if !e.params.Quorum.Confirms(stats.SignalCount, population) {
		e.logger.Debug("no quorum",
			"signal_count", stats.SignalCount,
			"population", population,
			"required_ratio", e.params.Quorum.RequiredRatio(population))
		return Result{Outcome: OutcomeNoQuorum, SignalCount: stats.SignalCount, Population: population}, nil
	}

	candidate := domain.DetectedEvent{
		Lat:          stats.CentroidLat,
		Lng:          stats.CentroidLng,
		Intensity:    domain.Intensity(stats.AvgPGA),
		MaxPGA:       stats.MaxPGA,
		AvgPGA:       stats.AvgPGA,
		Participants: stats.SignalCount,
	}

	unlock := e.locks.Lock(domain.CellKey(candidate.Lat, candidate.Lng))
	event, created, err := e.store.RecordOrReuseEvent(ctx, candidate, e.params.DedupRadiusKm, e.params.DedupCooldown)
	unlock()
	if err != nil {
		return Result{}, fmt.Errorf("record event: %w", err)
	}

	if created {
		e.metrics.EventsCreated.Inc()
		e.logger.Info("earthquake confirmed",
			"event_id", event.ID,
			"intensity", event.Intensity,
			"participants", event.Participants,
			"population", population,
			"lat", event.Lat, "lng", event.Lng)
		e.publish(ctx, event)
	} else {
		e.metrics.EventsReused.Inc()
		e.logger.Debug("confirmation merged into existing event", "event_id", event.ID)
	}

	return Result{
		Outcome:      OutcomeConfirmed,
		Event:        event,
		EventCreated: created,
		SignalCount:  stats.SignalCount,
		Population:   population,
	}, nil
}

// publish sends the alert best-effort. A publish failure does not undo
// the confirmation; the event is already durable.
func (e *Engine) publish(ctx context.Context, event domain.DetectedEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishEvent(ctx, event); err != nil {
		e.metrics.AlertErrors.Inc()
		e.logger.Error("alert publish failed", "error", err, "event_id", event.ID)
		return
	}
	e.metrics.AlertsPublished.Inc()
}
