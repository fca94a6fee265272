package session

import (
	"context"
	"time"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
)

// request sends a message built around a fresh reply channel and waits for the
// answer, the caller's context, or the session stopping.
func request[T any](ctx context.Context, s *Session, build func(reply chan T) Msg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	select {
	case s.inbox <- build(reply):
	case <-s.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Join adds a player, or returns the existing one when the id is taken.
func (s *Session) Join(ctx context.Context, spec engine.PlayerSpec) (JoinResult, error) {
	return request(ctx, s, func(r chan JoinResult) Msg { return AddPlayer{Spec: spec, Reply: r} })
}

func (s *Session) Leave(ctx context.Context, playerID string) (bool, error) {
	return request(ctx, s, func(r chan bool) Msg { return RemovePlayer{PlayerID: playerID, Reply: r} })
}

// Submit applies an intent and waits for its result. Intents from one caller
// are applied in the order submitted, before any later tick.
func (s *Session) Submit(ctx context.Context, in engine.Intent) (engine.IntentResult, error) {
	return request(ctx, s, func(r chan engine.IntentResult) Msg { return FromClient{Intent: in, Reply: r} })
}

func (s *Session) SpawnEnemy(ctx context.Context, e engine.Enemy) error {
	_, err := request(ctx, s, func(r chan struct{}) Msg { return AddEnemy{Enemy: e, Reply: r} })
	return err
}

func (s *Session) View(ctx context.Context) (View, error) {
	return request(ctx, s, func(r chan View) Msg { return GetState{Reply: r} })
}

// TryTick enqueues a tick without blocking. It reports false when the inbox
// is full or the session has stopped; the next delivered tick covers the gap.
func (s *Session) TryTick(now time.Time) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- Tick{Now: now}:
		return true
	default:
		return false
	}
}

// Close stops the actor after the messages already queued. It does not wait.
func (s *Session) Close() {
	select {
	case s.inbox <- Shutdown{}:
	default:
		s.stop()
	}
}

// Discard is Close for a session that is going away for good: once the actor
// stops it deletes the persisted record.
func (s *Session) Discard() {
	s.forget.Store(true)
	s.Close()
}
