// Package directory maps transport connections to the session player they
// act for.
package directory

import (
	"sync"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/metrics"
)

type Binding struct {
	SessionID string
	PlayerID  string
}

// Directory holds at most one binding per connection.
type Directory struct {
	mu      sync.RWMutex
	m       map[string]Binding
	metrics *metrics.Metrics
}

func New(m *metrics.Metrics) *Directory {
	return &Directory{m: make(map[string]Binding), metrics: m}
}

// Bind replaces any previous binding of connID.
func (d *Directory) Bind(connID, sessionID, playerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[connID] = Binding{SessionID: sessionID, PlayerID: playerID}
	d.metrics.SetConnections(len(d.m))
}

func (d *Directory) Resolve(connID string) (Binding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.m[connID]
	return b, ok
}

// Unbind is a no-op for unknown connections. It never removes the player from
// the session; a reconnect picks the same player back up.
func (d *Directory) Unbind(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.m, connID)
	d.metrics.SetConnections(len(d.m))
}

// UnbindSession drops every binding into sessionID and returns the affected
// connection ids.
func (d *Directory) UnbindSession(sessionID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var conns []string
	for connID, b := range d.m {
		if b.SessionID == sessionID {
			conns = append(conns, connID)
			delete(d.m, connID)
		}
	}
	d.metrics.SetConnections(len(d.m))
	return conns
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.m)
}
