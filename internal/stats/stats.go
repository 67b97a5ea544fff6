// Package stats contains the in-memory store of VPN connection events and
// the aggregations computed from it.
package stats

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/google/uuid"
)

// Limits of the aggregated views.
const (
	PopularLimit      = 10
	TopCountriesLimit = 5
	RecentLimit       = 20
)

// Conversion constants for durations, which are tracked in milliseconds.
const (
	msPerHour   = 3_600_000
	msPerMinute = 60_000
)

// Config is the configuration of a [Store].
type Config struct {
	// Clock is used to stamp events and views.  If nil, the system clock is
	// used.
	Clock timeutil.Clock
}

// Store is the in-memory event store.  Events are only ever appended, and
// every appended event increments exactly one entry in each counter.
type Store struct {
	clock timeutil.Clock

	// mu protects all fields below.
	mu *sync.RWMutex

	connections   []*ConnectionEvent
	servers       *counter
	users         *counter
	countries     *counter
	totalDuration int64
}

// NewStore returns a new empty *Store.  c may be nil.
func NewStore(c *Config) (s *Store) {
	var clock timeutil.Clock = timeutil.SystemClock{}
	if c != nil && c.Clock != nil {
		clock = c.Clock
	}

	return &Store{
		clock:     clock,
		mu:        &sync.RWMutex{},
		servers:   newCounter(),
		users:     newCounter(),
		countries: newCounter(),
	}
}

// Track decodes data as a track payload and records the event.  On error the
// store is left unchanged and err wraps [ErrInvalidPayload].
func (s *Store) Track(data []byte) (ev *ConnectionEvent, err error) {
	p, err := decodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	ev = &ConnectionEvent{
		ID:         uuid.New(),
		ServerID:   p.serverID,
		ServerName: p.serverName,
		Country:    p.country,
		UserID:     p.userID,
		Protocol:   p.protocol,
		Duration:   p.duration,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Duration > math.MaxInt64-s.totalDuration {
		return nil, fmt.Errorf(
			"%w: field %q: %d overflows the total of %d",
			ErrInvalidPayload,
			"duration",
			ev.Duration,
			s.totalDuration,
		)
	}

	// Stamp under the lock so that timestamps follow the arrival order.
	ev.Time = s.clock.Now()
	ev.Timestamp = FormatTime(ev.Time)

	s.connections = append(s.connections, ev)
	s.servers.inc(ev.ServerID)
	s.users.inc(ev.UserID)
	s.countries.inc(ev.Country)
	s.totalDuration += ev.Duration

	cp := *ev

	return &cp, nil
}

// Len returns the number of tracked events.
func (s *Store) Len() (n int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.connections)
}

// Stats returns the statistics view of the store.
func (s *Store) Stats() (snap *Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Snapshot{
		TotalConnections:   len(s.connections),
		TotalUsers:         s.users.len(),
		TotalDurationHours: round2(float64(s.totalDuration) / msPerHour),
		PopularServers:     s.servers.top(PopularLimit),
		PopularCountries:   s.countries.top(PopularLimit),
		LastUpdated:        FormatTime(s.clock.Now()),
	}
}

// Dashboard returns the dashboard view of the store.
func (s *Store) Dashboard() (d *Dashboard) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avg float64
	if n := len(s.connections); n > 0 {
		avg = round2(float64(s.totalDuration) / float64(n) / msPerMinute)
	}

	return &Dashboard{
		TotalConnections:      len(s.connections),
		UniqueUsers:           s.users.len(),
		AverageSessionMinutes: avg,
		TopCountries:          RankedCounts(s.countries.top(TopCountriesLimit)),
		RecentConnections:     s.recent(RecentLimit),
	}
}

// Health returns the liveness view of the store.
func (s *Store) Health() (h *Health) {
	return &Health{
		Status:           "healthy",
		Timestamp:        FormatTime(s.clock.Now()),
		ConnectionsCount: s.Len(),
	}
}

// recent returns copies of at most limit events, newest first.  Events with
// equal times keep the later arrival first.  s.mu must be locked for reading.
func (s *Store) recent(limit int) (evs []ConnectionEvent) {
	evs = make([]ConnectionEvent, 0, len(s.connections))
	for _, ev := range s.connections {
		evs = append(evs, *ev)
	}

	slices.Reverse(evs)
	slices.SortStableFunc(evs, func(a, b ConnectionEvent) (res int) {
		return b.Time.Compare(a.Time)
	})

	return evs[:min(limit, len(evs))]
}

// counter counts label occurrences and remembers the order in which labels
// were first seen.
type counter struct {
	counts map[Label]uint64
	order  []Label
}

// newCounter returns a new empty *counter.
func newCounter() (c *counter) {
	return &counter{
		counts: map[Label]uint64{},
	}
}

// inc increments the count of l.
func (c *counter) inc(l Label) {
	if _, ok := c.counts[l]; !ok {
		c.order = append(c.order, l)
	}

	c.counts[l]++
}

// len returns the number of distinct labels.
func (c *counter) len() (n int) {
	return len(c.order)
}

// top returns at most n entries with the highest counts.  Equal counts are
// ordered by first appearance.
func (c *counter) top(n int) (kcs []KeyCount) {
	kcs = make([]KeyCount, 0, len(c.order))
	for _, l := range c.order {
		kcs = append(kcs, KeyCount{Key: l, Count: c.counts[l]})
	}

	slices.SortStableFunc(kcs, func(a, b KeyCount) (res int) {
		return cmp.Compare(b.Count, a.Count)
	})

	return kcs[:min(n, len(kcs))]
}

// round2 rounds f to two decimal places, halves away from zero.
func round2(f float64) (r float64) {
	return math.Round(f*100) / 100
}
