package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/store"
	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

type broadcast struct {
	SessionID string
	Event     string
	Payload   any
}

type fakeBroadcaster struct{ ch chan broadcast }

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{ch: make(chan broadcast, 32)}
}

func (f *fakeBroadcaster) Broadcast(sessionID, event string, payload any) {
	f.ch <- broadcast{SessionID: sessionID, Event: event, Payload: payload}
}

type fakePersister struct {
	mu   sync.Mutex
	recs []store.Record
	ops  []string
}

func (f *fakePersister) Save(rec store.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	f.ops = append(f.ops, "save:"+rec.Code)
}

func (f *fakePersister) Delete(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete:"+code)
}

func (f *fakePersister) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakePersister) saved() []store.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Record(nil), f.recs...)
}

// helper: receive one broadcast with a timeout so tests never hang
func recvBroadcast(t *testing.T, ch <-chan broadcast, within time.Duration) broadcast {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(within):
		t.Fatalf("timed out waiting for broadcast")
		return broadcast{} // unreachable
	}
}

func recvNoBroadcast(t *testing.T, ch <-chan broadcast, within time.Duration) {
	t.Helper()
	select {
	case b := <-ch:
		t.Fatalf("expected no broadcast within %v, got %+v", within, b)
	case <-time.After(within):
	}
}

var t0 = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return t0 }
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, "ABC123", opts)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSession_JoinSpawnsAndReportsInfo(t *testing.T) {
	persist := &fakePersister{}
	s := newTestSession(t, Options{
		Config:    types.SessionConfig{Difficulty: "hard", MaxPlayers: 4},
		Persister: persist,
	})
	ctx := testCtx(t)

	first, err := s.Join(ctx, engine.PlayerSpec{ID: "p1", Name: "Ana", Class: engine.ClassWarrior})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, engine.Position{X: 10, Y: 10}, first.Player.Position)

	second, err := s.Join(ctx, engine.PlayerSpec{ID: "p2", Name: "Bo", Class: engine.ClassMage})
	require.NoError(t, err)
	assert.Equal(t, engine.Position{X: 12, Y: 12}, second.Player.Position)

	info := second.Info
	assert.Equal(t, "ABC123", info.SessionID)
	assert.Equal(t, types.PhaseLobby, info.CurrentPhase)
	assert.Equal(t, 2, info.PlayerCount)
	assert.Equal(t, types.SessionConfig{Difficulty: "hard", MaxPlayers: 4}, info.Config)
	assert.Equal(t, t0.UnixMilli(), info.CreatedAt)

	recs := persist.saved()
	require.Len(t, recs, 2)
	assert.Len(t, recs[1].Players, 2)
}

func TestSession_RejoinKeepsState(t *testing.T) {
	persist := &fakePersister{}
	s := newTestSession(t, Options{Persister: persist})
	ctx := testCtx(t)

	_, err := s.Join(ctx, engine.PlayerSpec{ID: "p1", Name: "Ana", Class: engine.ClassWarrior})
	require.NoError(t, err)
	again, err := s.Join(ctx, engine.PlayerSpec{ID: "p1", Name: "Other", Class: engine.ClassMage})
	require.NoError(t, err)

	assert.False(t, again.Created)
	assert.Equal(t, "Ana", again.Player.Name)
	assert.Equal(t, 1, again.Info.PlayerCount)
	assert.Len(t, persist.saved(), 1)
}

func TestSession_IntentAppliedBeforeNextTick(t *testing.T) {
	out := newFakeBroadcaster()
	s := newTestSession(t, Options{Broadcaster: out})
	ctx := testCtx(t)

	_, err := s.Join(ctx, engine.PlayerSpec{ID: "p1", Name: "Ana", Class: engine.ClassWarrior})
	require.NoError(t, err)

	res, err := s.Submit(ctx, engine.Intent{
		Type: engine.IntentMoveTo, PlayerID: "p1",
		TargetPosition: &engine.Position{X: 20, Y: 10},
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	require.True(t, s.TryTick(t0.Add(time.Second)))

	b := recvBroadcast(t, out.ch, 200*time.Millisecond)
	assert.Equal(t, "ABC123", b.SessionID)
	assert.Equal(t, types.EventGameUpdate, b.Event)
	update, ok := b.Payload.(engine.Update)
	require.True(t, ok)
	require.Len(t, update.Players, 1)
	assert.Equal(t, engine.Position{X: 15, Y: 10}, update.Players[0].Position)
	assert.Equal(t, engine.Vec{X: 5}, update.Players[0].Velocity)
}

func TestSession_AbilityUsedIsBroadcastOnce(t *testing.T) {
	out := newFakeBroadcaster()
	s := newTestSession(t, Options{Broadcaster: out})
	ctx := testCtx(t)

	_, err := s.Join(ctx, engine.PlayerSpec{ID: "w", Name: "Ana", Class: engine.ClassWarrior})
	require.NoError(t, err)

	use := engine.Intent{Type: engine.IntentUseAbility, PlayerID: "w", AbilityID: "shield-bash", Timestamp: 0}
	res, err := s.Submit(ctx, use)
	require.NoError(t, err)
	require.True(t, res.Accepted)

	b := recvBroadcast(t, out.ch, 200*time.Millisecond)
	assert.Equal(t, types.EventAbilityUsed, b.Event)
	assert.Equal(t, types.AbilityUsed{PlayerID: "w", AbilityID: "shield-bash"}, b.Payload)

	use.Timestamp = 2000
	res, err = s.Submit(ctx, use)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err(), engine.ErrCooldownActive)
	recvNoBroadcast(t, out.ch, 50*time.Millisecond)
}

func TestSession_LeaveAndView(t *testing.T) {
	s := newTestSession(t, Options{})
	ctx := testCtx(t)

	_, err := s.Join(ctx, engine.PlayerSpec{ID: "p1", Name: "Ana", Class: engine.ClassRanger})
	require.NoError(t, err)
	require.NoError(t, s.SpawnEnemy(ctx, engine.Enemy{ID: "e1", Type: "rat", Name: "Rat", Health: 8}))

	removed, err := s.Leave(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.Leave(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, removed)

	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Info.PlayerCount)
	require.Len(t, v.Snapshot.Enemies, 1)
	assert.Equal(t, 8, v.Snapshot.Enemies[0].MaxHealth)
	assert.Equal(t, t0, v.LastActivity)
}

func TestSession_PanicInTickDoesNotStopSession(t *testing.T) {
	out := newFakeBroadcaster()
	s := newTestSession(t, Options{
		Broadcaster: out,
		Rules: engine.Rules{EnemyPolicy: func(*engine.State, *engine.Enemy, float64) {
			panic("bad enemy")
		}},
	})
	ctx := testCtx(t)
	require.NoError(t, s.SpawnEnemy(ctx, engine.Enemy{ID: "e1", Health: 1}))

	require.True(t, s.TryTick(t0.Add(33*time.Millisecond)))

	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Snapshot.Enemies, 1)
	recvNoBroadcast(t, out.ch, 20*time.Millisecond)
}

func TestSession_CloseStopsActor(t *testing.T) {
	s := newTestSession(t, Options{})
	s.Close()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session did not stop")
	}

	_, err := s.Join(testCtx(t), engine.PlayerSpec{ID: "late", Name: "Late", Class: engine.ClassCleric})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.TryTick(t0))
}

func TestSession_TryTickDoesNotBlockWhenFull(t *testing.T) {
	s := newTestSession(t, Options{InboxSize: 1})
	// Park the actor on a reply nobody reads so the inbox can fill up.
	blocked := make(chan View)
	s.Inbox() <- GetState{Reply: blocked}
	time.Sleep(20 * time.Millisecond)

	delivered := 0
	for i := 0; i < 5; i++ {
		if s.TryTick(t0) {
			delivered++
		}
	}
	assert.Equal(t, 1, delivered)
	<-blocked
}

func waitStopped(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session actor still running")
	}
}

func TestSession_DiscardDeletesAfterQueuedSaves(t *testing.T) {
	persist := &fakePersister{}
	s := newTestSession(t, Options{Persister: persist})

	// Queue the join and the discard without waiting on either reply so the
	// actor sees them back to back.
	reply := make(chan JoinResult, 1)
	s.Inbox() <- AddPlayer{Spec: engine.PlayerSpec{ID: "p1", Name: "Ana", Class: engine.ClassWarrior}, Reply: reply}
	s.Discard()
	waitStopped(t, s)

	assert.Equal(t, []string{"save:ABC123", "delete:ABC123"}, persist.history())
}

func TestSession_CloseKeepsRecord(t *testing.T) {
	persist := &fakePersister{}
	s := newTestSession(t, Options{Persister: persist})

	_, err := s.Join(testCtx(t), engine.PlayerSpec{ID: "p1", Name: "Ana", Class: engine.ClassWarrior})
	require.NoError(t, err)
	s.Close()
	waitStopped(t, s)

	assert.Equal(t, []string{"save:ABC123"}, persist.history())
}
