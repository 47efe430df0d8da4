package stream

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/weather-stream/internal/metrics"
	"github.com/i474232898/weather-stream/internal/weather"
)

// AllCategories subscribes a connection to every alert category.
const AllCategories = "all"

// Meta is display information attached to a connection.
type Meta struct {
	Query        string `json:"query"`
	LocationName string `json:"location_name"`
}

// Connection is one subscriber to one location's live feed.
type Connection struct {
	ID              string    `json:"connection_id"`
	LocationKey     string    `json:"location_key"`
	Meta            Meta      `json:"meta"`
	CreatedAt       time.Time `json:"created_at"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	AlertCategories []string  `json:"alert_categories"`
}

// Matches reports whether an alert with category should reach this connection.
func (c Connection) Matches(category string) bool {
	for _, want := range c.AlertCategories {
		if strings.EqualFold(want, AllCategories) || strings.EqualFold(want, category) {
			return true
		}
	}
	return false
}

// Filter returns the alerts this connection is subscribed to.
func (c Connection) Filter(alerts []weather.Alert) []weather.Alert {
	var out []weather.Alert
	for _, a := range alerts {
		if c.Matches(a.Category) {
			out = append(out, a)
		}
	}
	return out
}

type entry struct {
	conn   Connection
	outbox chan Event
}

// Registry owns the live connections and the location -> subscriber index.
// Both structures are updated under one lock, so readers never see a
// connection in one and not the other.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*entry
	byLocation map[string]map[string]struct{}

	outboxSize int
	now        func() time.Time
}

// NewRegistry creates an empty registry. now defaults to time.Now and
// outboxSize to 16.
func NewRegistry(now func() time.Time, outboxSize int) *Registry {
	if now == nil {
		now = time.Now
	}
	if outboxSize <= 0 {
		outboxSize = 16
	}
	return &Registry{
		conns:      make(map[string]*entry),
		byLocation: make(map[string]map[string]struct{}),
		outboxSize: outboxSize,
		now:        now,
	}
}

// Add registers a connection. An existing connection with the same id is
// replaced and its stream is closed. Empty categories mean "all".
func (r *Registry) Add(id, locationKey string, meta Meta, categories []string) Connection {
	cats := normalizeCategories(categories)
	now := r.now()

	conn := Connection{
		ID:              id,
		LocationKey:     locationKey,
		Meta:            meta,
		CreatedAt:       now,
		LastHeartbeat:   now,
		AlertCategories: cats,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[id]; ok {
		r.removeLocked(id, old)
	}

	r.conns[id] = &entry{conn: conn, outbox: make(chan Event, r.outboxSize)}
	subs, ok := r.byLocation[locationKey]
	if !ok {
		subs = make(map[string]struct{})
		r.byLocation[locationKey] = subs
	}
	subs[id] = struct{}{}

	r.updateGaugesLocked()
	return conn.clone()
}

// Remove unregisters a connection. Unknown ids are ignored. It reports
// whether anything was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return false
	}
	r.removeLocked(id, e)
	r.updateGaugesLocked()
	return true
}

// RemoveIfExpired removes id only if it is still expired at the time of the
// call, so a heartbeat racing with a sweep keeps the connection alive.
func (r *Registry) RemoveIfExpired(id string, timeout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok || !r.expired(e.conn, timeout) {
		return false
	}
	r.removeLocked(id, e)
	r.updateGaugesLocked()
	return true
}

// release removes id only while it still refers to the entry whose queue is
// outbox; a session must not remove a connection that replaced its own.
func (r *Registry) release(id string, outbox <-chan Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok || (<-chan Event)(e.outbox) != outbox {
		return false
	}
	r.removeLocked(id, e)
	r.updateGaugesLocked()
	return true
}

func (r *Registry) removeLocked(id string, e *entry) {
	delete(r.conns, id)
	close(e.outbox)

	if subs, ok := r.byLocation[e.conn.LocationKey]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.byLocation, e.conn.LocationKey)
		}
	}
}

func (r *Registry) updateGaugesLocked() {
	metrics.ConnectionsActive.Set(float64(len(r.conns)))
	metrics.MonitoredLocations.Set(float64(len(r.byLocation)))
}

// UpdateHeartbeat marks id as alive now. Unknown ids are ignored.
func (r *Registry) UpdateHeartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.conn.LastHeartbeat = r.now()
	return true
}

// IsExpired reports whether conn has been idle strictly longer than timeout.
func (r *Registry) IsExpired(conn Connection, timeout time.Duration) bool {
	return r.expired(conn, timeout)
}

func (r *Registry) expired(conn Connection, timeout time.Duration) bool {
	return r.now().Sub(conn.LastHeartbeat) > timeout
}

// Get returns a copy of the connection with id.
func (r *Registry) Get(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return e.conn.clone(), true
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// Snapshot returns copies of every registered connection.
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.conn.clone())
	}
	return out
}

// SubscribersFor returns the ids subscribed to locationKey, sorted.
func (r *Registry) SubscribersFor(locationKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.byLocation[locationKey]
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DistinctLocations returns every location key with at least one subscriber, sorted.
func (r *Registry) DistinctLocations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byLocation))
	for key := range r.byLocation {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// LocationCount returns the number of distinct watched locations.
func (r *Registry) LocationCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byLocation)
}

// Deliver queues ev on the connection's stream without blocking. It returns
// false when id is unknown or its queue is full.
func (r *Registry) Deliver(id string, ev Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return false
	}
	select {
	case e.outbox <- ev:
		return true
	default:
		return false
	}
}

// events returns the queue a session drains. It is closed when the
// connection is removed or replaced.
func (r *Registry) events(id string) (<-chan Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.outbox, true
}

func (c Connection) clone() Connection {
	c.AlertCategories = append([]string(nil), c.AlertCategories...)
	return c
}

func normalizeCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return []string{AllCategories}
	}
	return out
}
