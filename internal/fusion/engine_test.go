package fusion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenet-project/seismic-fusion/internal/domain"
	"github.com/kenet-project/seismic-fusion/internal/observability"
)

type mockStore struct {
	signalsNearFunc   func(ctx context.Context, lat, lng, radiusKm float64, window time.Duration) ([]domain.Signal, error)
	activeNearbyFunc  func(ctx context.Context, lat, lng, radiusKm float64, recency time.Duration) (int, error)
	recordOrReuseFunc func(ctx context.Context, candidate domain.DetectedEvent, radiusKm float64, cooldown time.Duration) (domain.DetectedEvent, bool, error)
}

func (m *mockStore) SignalsNear(ctx context.Context, lat, lng, radiusKm float64, window time.Duration) ([]domain.Signal, error) {
	return m.signalsNearFunc(ctx, lat, lng, radiusKm, window)
}

func (m *mockStore) ActiveNearby(ctx context.Context, lat, lng, radiusKm float64, recency time.Duration) (int, error) {
	return m.activeNearbyFunc(ctx, lat, lng, radiusKm, recency)
}

func (m *mockStore) RecordOrReuseEvent(ctx context.Context, candidate domain.DetectedEvent, radiusKm float64, cooldown time.Duration) (domain.DetectedEvent, bool, error) {
	return m.recordOrReuseFunc(ctx, candidate, radiusKm, cooldown)
}

type mockPublisher struct {
	publishFunc func(ctx context.Context, event domain.DetectedEvent) error
	published   []domain.DetectedEvent
}

func (m *mockPublisher) PublishEvent(ctx context.Context, event domain.DetectedEvent) error {
	if m.publishFunc != nil {
		if err := m.publishFunc(ctx, event); err != nil {
			return err
		}
	}
	m.published = append(m.published, event)
	return nil
}

func testParams() Params {
	return Params{
		ClusterRadiusKm:   20,
		FusionWindow:      30 * time.Second,
		DedupRadiusKm:     20,
		DedupCooldown:     5 * time.Minute,
		PopulationRecency: time.Hour,
		Quorum:            domain.DefaultQuorumPolicy(),
	}
}

func newTestEngine(store SignalStore, publisher AlertPublisher) *Engine {
	return NewEngine(
		store,
		publisher,
		testParams(),
		clockwork.NewFakeClock(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
	)
}

// clusterOf builds n signals from n distinct devices near the point.
func clusterOf(n int, pga float64) []domain.Signal {
	signals := make([]domain.Signal, n)
	for i := range signals {
		signals[i] = domain.Signal{
			DeviceID: string(rune('a' + i%26)) + string(rune('0'+i/26)),
			PGA:      pga,
			Lat:      38.0 + float64(i)*0.001,
			Lng:      27.0,
		}
	}
	return signals
}

// recordingStore returns a mock that confirms any candidate as a new
// event, recording what the engine asked for.
func recordingStore(signals []domain.Signal, population int) (*mockStore, *domain.DetectedEvent) {
	var recorded domain.DetectedEvent
	m := &mockStore{
		signalsNearFunc: func(context.Context, float64, float64, float64, time.Duration) ([]domain.Signal, error) {
			return signals, nil
		},
		activeNearbyFunc: func(context.Context, float64, float64, float64, time.Duration) (int, error) {
			return population, nil
		},
		recordOrReuseFunc: func(_ context.Context, candidate domain.DetectedEvent, _ float64, _ time.Duration) (domain.DetectedEvent, bool, error) {
			recorded = candidate
			recorded.ID = "evt-1"
			return recorded, true, nil
		},
	}
	return m, &recorded
}

func TestAnalyze_RealismCeilingRejects(t *testing.T) {
	store := &mockStore{
		signalsNearFunc: func(context.Context, float64, float64, float64, time.Duration) ([]domain.Signal, error) {
			t.Fatal("cluster query must not run for a rejected signal")
			return nil, nil
		},
	}
	engine := newTestEngine(store, nil)

	res, err := engine.Analyze(context.Background(), domain.Signal{DeviceID: "dev-a", PGA: 5.5})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
}

func TestAnalyze_QuorumOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		signalCount int
		population  int
		want        Outcome
	}{
		{"lone signal in a city", 1, 200, OutcomeNoQuorum},
		{"just below base ratio", 29, 200, OutcomeNoQuorum},
		{"just above base ratio", 35, 200, OutcomeConfirmed},
		{"lone signal in empty area", 1, 1, OutcomeConfirmed},
		{"lone signal among three devices", 1, 3, OutcomeNoQuorum},
		{"three of five devices", 3, 5, OutcomeConfirmed},
		{"two of five devices", 2, 5, OutcomeNoQuorum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := recordingStore(clusterOf(tt.signalCount, 0.05), tt.population)
			engine := newTestEngine(store, nil)

			res, err := engine.Analyze(context.Background(), domain.Signal{DeviceID: "dev-a", PGA: 0.05, Lat: 38, Lng: 27})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			if tt.want != OutcomeRejected {
				assert.Equal(t, tt.signalCount, res.SignalCount)
				assert.Equal(t, tt.population, res.Population)
			}
		})
	}
}

func TestAnalyze_EmptyClusterIsNoQuorum(t *testing.T) {
	store, _ := recordingStore(nil, 50)
	engine := newTestEngine(store, nil)

	res, err := engine.Analyze(context.Background(), domain.Signal{DeviceID: "dev-a", PGA: 0.05})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoQuorum, res.Outcome)
}

func TestAnalyze_ConfirmedEventShape(t *testing.T) {
	signals := clusterOf(10, 0.05)
	signals[0].PGA = 0.30 // one device peaks higher
	store, recorded := recordingStore(signals, 20)
	engine := newTestEngine(store, nil)

	res, err := engine.Analyze(context.Background(), domain.Signal{DeviceID: "dev-a", PGA: 0.05, Lat: 38, Lng: 27})
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.True(t, res.EventCreated)

	assert.Equal(t, 10, recorded.Participants)
	assert.InDelta(t, 0.30, recorded.MaxPGA, 1e-9)
	assert.InDelta(t, 0.075, recorded.AvgPGA, 1e-9)
	assert.Equal(t, "strong", recorded.Intensity, "intensity derives from average, not peak")
	assert.InDelta(t, 38.0045, recorded.Lat, 1e-9, "centroid, not trigger position")
}

func TestAnalyze_PublishesOnlyNewEvents(t *testing.T) {
	event := domain.DetectedEvent{ID: "evt-existing", Intensity: "moderate"}
	created := false
	store := &mockStore{
		signalsNearFunc: func(context.Context, float64, float64, float64, time.Duration) ([]domain.Signal, error) {
			return clusterOf(5, 0.05), nil
		},
		activeNearbyFunc: func(context.Context, float64, float64, float64, time.Duration) (int, error) {
			return 10, nil
		},
		recordOrReuseFunc: func(context.Context, domain.DetectedEvent, float64, time.Duration) (domain.DetectedEvent, bool, error) {
			return event, created, nil
		},
	}
	publisher := &mockPublisher{}
	engine := newTestEngine(store, publisher)

	sig := domain.Signal{DeviceID: "dev-a", PGA: 0.05}

	res, err := engine.Analyze(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.False(t, res.EventCreated)
	assert.Empty(t, publisher.published, "reused events are not re-announced")

	created = true
	res, err = engine.Analyze(context.Background(), sig)
	require.NoError(t, err)
	assert.True(t, res.EventCreated)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "evt-existing", publisher.published[0].ID)
}

func TestAnalyze_PublishFailureDoesNotFailRun(t *testing.T) {
	store, _ := recordingStore(clusterOf(5, 0.05), 5)
	publisher := &mockPublisher{
		publishFunc: func(context.Context, domain.DetectedEvent) error {
			return errors.New("broker unavailable")
		},
	}
	engine := newTestEngine(store, publisher)

	res, err := engine.Analyze(context.Background(), domain.Signal{DeviceID: "dev-a", PGA: 0.05})
	require.NoError(t, err, "the event is durable, alerting is best-effort")
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
}

func TestAnalyze_StoreErrors(t *testing.T) {
	queryErr := errors.New("database is locked")

	t.Run("cluster query", func(t *testing.T) {
		store := &mockStore{
			signalsNearFunc: func(context.Context, float64, float64, float64, time.Duration) ([]domain.Signal, error) {
				return nil, queryErr
			},
		}
		_, err := newTestEngine(store, nil).Analyze(context.Background(), domain.Signal{PGA: 0.05})
		assert.ErrorIs(t, err, queryErr)
	})

	t.Run("population query", func(t *testing.T) {
		store := &mockStore{
			signalsNearFunc: func(context.Context, float64, float64, float64, time.Duration) ([]domain.Signal, error) {
				return clusterOf(5, 0.05), nil
			},
			activeNearbyFunc: func(context.Context, float64, float64, float64, time.Duration) (int, error) {
				return 0, queryErr
			},
		}
		_, err := newTestEngine(store, nil).Analyze(context.Background(), domain.Signal{PGA: 0.05})
		assert.ErrorIs(t, err, queryErr)
	})

	t.Run("event insert", func(t *testing.T) {
		store := &mockStore{
			signalsNearFunc: func(context.Context, float64, float64, float64, time.Duration) ([]domain.Signal, error) {
				return clusterOf(5, 0.05), nil
			},
			activeNearbyFunc: func(context.Context, float64, float64, float64, time.Duration) (int, error) {
				return 5, nil
			},
			recordOrReuseFunc: func(context.Context, domain.DetectedEvent, float64, time.Duration) (domain.DetectedEvent, bool, error) {
				return domain.DetectedEvent{}, false, queryErr
			},
		}
		_, err := newTestEngine(store, nil).Analyze(context.Background(), domain.Signal{PGA: 0.05})
		assert.ErrorIs(t, err, queryErr)
	})
}
