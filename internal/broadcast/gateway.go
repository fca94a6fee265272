// Package broadcast fans session events out to subscribed connections.
// Delivery is best effort: a connection whose outbox is full misses that
// frame, and nothing is retried.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/metrics"
)

type Subscriber struct {
	ConnID    string
	SessionID string
	Codec     Codec
	out       chan Frame
}

// Outbox is closed when the subscriber is removed.
func (s *Subscriber) Outbox() <-chan Frame { return s.out }

type Gateway struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Subscriber
	subs  map[string]*Subscriber

	outboxSize int
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewGateway(outboxSize int, log *zap.Logger, m *metrics.Metrics) *Gateway {
	if outboxSize <= 0 {
		outboxSize = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		rooms:      make(map[string]map[string]*Subscriber),
		subs:       make(map[string]*Subscriber),
		outboxSize: outboxSize,
		log:        log,
		metrics:    m,
	}
}

// Subscribe joins connID to the room of sessionID. A connection is in at most
// one room; subscribing again moves it.
func (g *Gateway) Subscribe(sessionID, connID string, codec Codec) *Subscriber {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeLocked(connID)
	sub := &Subscriber{
		ConnID:    connID,
		SessionID: sessionID,
		Codec:     codec,
		out:       make(chan Frame, g.outboxSize),
	}
	room, ok := g.rooms[sessionID]
	if !ok {
		room = make(map[string]*Subscriber)
		g.rooms[sessionID] = room
	}
	room[connID] = sub
	g.subs[connID] = sub
	return sub
}

// Unsubscribe is a no-op for unknown connections.
func (g *Gateway) Unsubscribe(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(connID)
}

func (g *Gateway) removeLocked(connID string) {
	sub, ok := g.subs[connID]
	if !ok {
		return
	}
	delete(g.subs, connID)
	if room := g.rooms[sub.SessionID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(g.rooms, sub.SessionID)
		}
	}
	close(sub.out)
}

// Broadcast encodes the event at most once per codec and enqueues it on every
// subscriber of the room without blocking.
func (g *Gateway) Broadcast(sessionID, event string, payload any) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	room := g.rooms[sessionID]
	if len(room) == 0 {
		return
	}
	var frames [2]*Frame
	for _, sub := range room {
		f := frames[sub.Codec]
		if f == nil {
			enc, err := Encode(sub.Codec, event, payload)
			if err != nil {
				g.log.Error("encode broadcast", zap.String("session", sessionID), zap.String("event", event), zap.Error(err))
				return
			}
			f = &enc
			frames[sub.Codec] = f
		}
		g.enqueue(sub, *f)
	}
}

// Send delivers one event to a single connection. It reports false when the
// connection is unknown or its outbox is full.
func (g *Gateway) Send(connID, event string, payload any) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sub, ok := g.subs[connID]
	if !ok {
		return false
	}
	f, err := Encode(sub.Codec, event, payload)
	if err != nil {
		g.log.Error("encode message", zap.String("conn", connID), zap.String("event", event), zap.Error(err))
		return false
	}
	return g.enqueue(sub, f)
}

func (g *Gateway) enqueue(sub *Subscriber, f Frame) bool {
	select {
	case sub.out <- f:
		return true
	default:
		g.metrics.FrameDropped()
		return false
	}
}

// CloseRoom sends a final event to the room and removes every subscriber.
func (g *Gateway) CloseRoom(sessionID, event string, payload any) {
	g.Broadcast(sessionID, event, payload)

	g.mu.Lock()
	defer g.mu.Unlock()
	for connID := range g.rooms[sessionID] {
		g.removeLocked(connID)
	}
}

func (g *Gateway) RoomSize(sessionID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[sessionID])
}
