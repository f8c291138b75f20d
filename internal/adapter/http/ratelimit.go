package http

import (
	"sync"

	"golang.org/x/time/rate"
)

// deviceLimiter enforces a per-device token bucket on signal ingest. The
// limiter table is LRU-bounded so a churn of device IDs cannot grow it
// without limit; evicting an idle device just resets its bucket to full.
type deviceLimiter struct {
	rps        rate.Limit
	burst      int
	maxEntries int

	mu      sync.Mutex
	entries map[string]*limiterEntry
	head    *limiterEntry // most recently used
	tail    *limiterEntry // least recently used
}

type limiterEntry struct {
	key     string
	limiter *rate.Limiter
	prev    *limiterEntry
	next    *limiterEntry
}

// newDeviceLimiter creates a limiter table. rps 0 disables limiting.
func newDeviceLimiter(rps float64, burst, maxEntries int) *deviceLimiter {
	return &deviceLimiter{
		rps:        rate.Limit(rps),
		burst:      burst,
		maxEntries: maxEntries,
		entries:    make(map[string]*limiterEntry),
	}
}

// Allow reports whether the device may submit another signal now.
func (d *deviceLimiter) Allow(deviceID string) bool {
	if d.rps == 0 {
		return true
	}

	d.mu.Lock()
	e, ok := d.entries[deviceID]
	if !ok {
		e = &limiterEntry{key: deviceID, limiter: rate.NewLimiter(d.rps, d.burst)}
		d.entries[deviceID] = e
		d.addToFront(e)
		if len(d.entries) > d.maxEntries {
			d.evictTail()
		}
	} else {
		d.moveToFront(e)
	}
	d.mu.Unlock()

	return e.limiter.Allow()
}

func (d *deviceLimiter) moveToFront(e *limiterEntry) {
	if e == d.head {
		return
	}
	d.remove(e)
	d.addToFront(e)
}

func (d *deviceLimiter) addToFront(e *limiterEntry) {
	e.next = d.head
	e.prev = nil
	if d.head != nil {
		d.head.prev = e
	}
	d.head = e
	if d.tail == nil {
		d.tail = e
	}
}

func (d *deviceLimiter) remove(e *limiterEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		d.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		d.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (d *deviceLimiter) evictTail() {
	if d.tail == nil {
		return
	}
	evicted := d.tail
	d.remove(evicted)
	delete(d.entries, evicted.key)
}
