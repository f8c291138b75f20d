package kandilli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenet-project/seismic-fusion/internal/domain"
	"github.com/kenet-project/seismic-fusion/internal/observability"
)

// sampleFeed mirrors the real feed shape, including the misspelled
// element name and the one malformed entry.
const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<eqlist>
  <earhquake name="2026.02.06 01:17:00" lokasyon=" SULUSARAY-TOKAT " lat="40.01" lng="36.09" mag="4.1" Depth="7.2"/>
  <earhquake name="2026.02.06 01:02:30" lokasyon="AKHISAR-MANISA" lat="38.95" lng="27.82" mag="2.3" Depth="9.8"/>
  <earhquake name="not a date" lokasyon="BROKEN" lat="0" lng="0" mag="0" Depth="0"/>
</eqlist>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleFeed)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, discardLogger())

	quakes, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quakes, 2, "malformed entry is skipped")

	q := quakes[0]
	assert.Equal(t, "SULUSARAY-TOKAT", q.Title, "location is trimmed")
	assert.Equal(t, 4.1, q.Magnitude)
	assert.Equal(t, 7.2, q.Depth)
	assert.Equal(t, 40.01, q.Lat)
	assert.Equal(t, 36.09, q.Lng)
	// Feed timestamps are Turkey time (UTC+3).
	assert.Equal(t, time.Date(2026, 2, 5, 22, 17, 0, 0, time.UTC), q.OccurredAt)
	assert.Equal(t, "20260205221700", q.ExternalID)
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, discardLogger())

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetch_NotXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>maintenance</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, discardLogger())

	_, err := client.Fetch(context.Background())
	assert.Error(t, err)
}

type mockQuakeStore struct {
	mu       sync.Mutex
	upserted [][]domain.OfficialQuake
	err      error
}

func (m *mockQuakeStore) UpsertOfficialQuakes(_ context.Context, quakes []domain.OfficialQuake) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.upserted = append(m.upserted, quakes)
	return len(quakes), nil
}

func (m *mockQuakeStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserted)
}

func TestPoller_PollsImmediatelyAndOnTicks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleFeed)) //nolint:errcheck
	}))
	defer srv.Close()

	store := &mockQuakeStore{}
	clock := clockwork.NewFakeClock()
	poller := NewPoller(
		NewClient(srv.URL, 5*time.Second, discardLogger()),
		store,
		time.Minute,
		clock,
		discardLogger(),
		observability.NewMetricsForTesting(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = poller.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return store.calls() == 1 }, 5*time.Second, 10*time.Millisecond,
		"first poll happens without waiting for a tick")

	clock.BlockUntil(1) // ticker is armed
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool { return store.calls() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
}

func TestPoller_StoreErrorDoesNotStopPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleFeed)) //nolint:errcheck
	}))
	defer srv.Close()

	store := &mockQuakeStore{err: errors.New("database is locked")}
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	poller := NewPoller(
		NewClient(srv.URL, 5*time.Second, discardLogger()),
		store,
		time.Minute,
		clock,
		discardLogger(),
		metrics,
	)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = poller.Run(ctx)
		close(stopped)
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	clock.BlockUntil(1)

	cancel()
	<-stopped
	assert.Zero(t, store.calls(), "store kept failing, nothing recorded")
}
