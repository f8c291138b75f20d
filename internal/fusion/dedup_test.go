package fusion

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenet-project/seismic-fusion/internal/domain"
	"github.com/kenet-project/seismic-fusion/internal/observability"
	"github.com/kenet-project/seismic-fusion/internal/store"
)

// TestAnalyze_ConcurrentRunsShareOneEvent drives many simultaneous
// analyses of the same physical shake against a real store. Every run
// must confirm, but exactly one may create the event; the rest reuse it.
// This is the check-then-insert race the cell lock and the dedup
// transaction exist to close.
func TestAnalyze_ConcurrentRunsShareOneEvent(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 6, 1, 17, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()

	// A confirmed cluster: 10 devices among a population of 10, well
	// above the 0.40 ratio required at that size.
	signals := make([]domain.Signal, 10)
	for i := range signals {
		signals[i] = domain.Signal{
			DeviceID:   string(rune('a' + i)),
			PGA:        0.08,
			Lat:        38.0 + float64(i)*0.001,
			Lng:        27.0,
			ObservedAt: clock.Now(),
		}
		require.NoError(t, st.RecordSignal(ctx, signals[i]))
		require.NoError(t, st.RefreshDeviceLocation(ctx, domain.DeviceLocation{
			DeviceID: signals[i].DeviceID,
			Lat:      signals[i].Lat,
			Lng:      signals[i].Lng,
			LastSeen: clock.Now(),
		}))
	}

	engine := NewEngine(st, nil, testParams(), clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting())

	const runs = 16

	var wg sync.WaitGroup
	results := make([]Result, runs)
	errs := make([]error, runs)
	start := make(chan struct{})
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = engine.Analyze(ctx, signals[i%len(signals)])
		}(i)
	}
	close(start)
	wg.Wait()

	created := 0
	eventIDs := map[string]bool{}
	for i := 0; i < runs; i++ {
		require.NoError(t, errs[i], "run %d", i)
		require.Equal(t, OutcomeConfirmed, results[i].Outcome, "run %d", i)
		eventIDs[results[i].Event.ID] = true
		if results[i].EventCreated {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one run creates the event")
	assert.Len(t, eventIDs, 1, "all runs resolve to the same event")

	events, err := st.ListEvents(ctx, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1, "exactly one row is stored")
	assert.True(t, eventIDs[events[0].ID])
}

// TestGeoLock_SerializesSameCell verifies the cell mutex: two holders of
// the same cell never overlap, while a different cell proceeds
// independently.
func TestGeoLock_SerializesSameCell(t *testing.T) {
	locks := newGeoLock()
	cell := domain.CellKey(38.0, 27.0)

	inSection := 0
	maxInSection := 0
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(cell)
			defer unlock()

			mu.Lock()
			inSection++
			if inSection > maxInSection {
				maxInSection = inSection
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInSection, "same-cell holders must not overlap")

	// A different cell is not blocked by a held lock.
	unlock := locks.Lock(cell)
	other := make(chan struct{})
	go func() {
		u := locks.Lock(domain.CellKey(40.0, 30.0))
		u()
		close(other)
	}()
	select {
	case <-other:
	case <-time.After(5 * time.Second):
		t.Fatal("different cell blocked by unrelated lock")
	}
	unlock()
}
