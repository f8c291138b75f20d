package fusion

import "sync"

// geoLock serializes event creation per coarse grid cell. The dedup
// check-then-insert in the store runs inside a transaction, but SQLite
// gives no row to lock on before the row exists; holding the cell mutex
// across the transaction closes the gap where two concurrent
// confirmations for the same area would both pass the check.
type geoLock struct {
	mu    sync.Mutex
	cells map[string]*sync.Mutex
}

func newGeoLock() *geoLock {
	return &geoLock{cells: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for the cell and returns its unlock function.
// Cell mutexes are never removed; the grid is coarse enough that the map
// stays small for any realistic deployment area.
func (g *geoLock) Lock(cell string) func() {
	g.mu.Lock()
	m, ok := g.cells[cell]
	if !ok {
		m = &sync.Mutex{}
		g.cells[cell] = m
	}
	g.mu.Unlock()

	m.Lock()
	return m.Unlock
}
