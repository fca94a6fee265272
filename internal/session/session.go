package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/metrics"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/store"
	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

var ErrClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

type AddPlayer struct {
	Spec  engine.PlayerSpec
	Reply chan JoinResult
}

func (AddPlayer) isSessionMsg() {}

type RemovePlayer struct {
	PlayerID string
	Reply    chan bool
}

func (RemovePlayer) isSessionMsg() {}

// FromClient carries a validated, server-stamped intent. Reply may be nil.
type FromClient struct {
	Intent engine.Intent
	Reply  chan engine.IntentResult
}

func (FromClient) isSessionMsg() {}

type Tick struct{ Now time.Time }

func (Tick) isSessionMsg() {}

type AddEnemy struct {
	Enemy engine.Enemy
	Reply chan struct{}
}

func (AddEnemy) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type JoinResult struct {
	Player  engine.Player
	Created bool
	Info    types.SessionInfo
}

// View is a consistent copy of the session taken inside the actor.
type View struct {
	Info         types.SessionInfo
	Snapshot     engine.Snapshot
	LastActivity time.Time
	LastUpdate   int64
}

// Broadcaster fans an event out to every connection in a session's room.
type Broadcaster interface {
	Broadcast(sessionID, event string, payload any)
}

// Persister receives session records after membership changes, and the
// delete for a discarded session once its actor has stopped.
type Persister interface {
	Save(rec store.Record)
	Delete(code string)
}

type Options struct {
	Config      types.SessionConfig
	Broadcaster Broadcaster
	Persister   Persister
	Rules       engine.Rules
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	InboxSize   int
	Clock       func() time.Time
}

// Session serializes every mutation of one game's state through a single
// goroutine: joins, intents and ticks are all messages on the same inbox.
type Session struct {
	code      string
	cfg       types.SessionConfig
	createdAt time.Time

	inbox chan Msg
	done  chan struct{}
	ctx   context.Context
	stop  context.CancelFunc

	state        *engine.State
	lastActivity time.Time
	forget       atomic.Bool

	out     Broadcaster
	persist Persister
	log     *zap.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

func New(parent context.Context, code string, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 128
	}
	now := opts.Clock()

	state := engine.NewEmptyState(now.UnixMilli())
	state.Rules = opts.Rules

	s := &Session{
		code:         code,
		cfg:          opts.Config,
		createdAt:    now,
		inbox:        make(chan Msg, opts.InboxSize),
		done:         make(chan struct{}),
		ctx:          ctx,
		stop:         cancel,
		state:        state,
		lastActivity: now,
		out:          opts.Broadcaster,
		persist:      opts.Persister,
		log:          opts.Logger.With(zap.String("session", code)),
		metrics:      opts.Metrics,
		clock:        opts.Clock,
	}

	go s.loop()
	return s
}

func (s *Session) Code() string { return s.code }

// Done is closed once the actor has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Inbox is exposed so tests and transports can send messages directly.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) loop() {
	defer close(s.done)
	defer s.stop()
	defer s.finish()
	for {
		select {
		case <-s.ctx.Done():
			return

		case m := <-s.inbox:
			if s.handle(m) {
				return
			}
		}
	}
}

// handle processes one message and reports whether the actor should stop.
// A panic is logged and swallowed so one bad message cannot take the session
// or the scheduler down.
func (s *Session) handle(m Msg) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session message panicked",
				zap.String("msg", fmt.Sprintf("%T", m)), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	switch msg := m.(type) {
	case AddPlayer:
		now := s.clock()
		p, created := s.state.Join(msg.Spec, now.UnixMilli())
		s.lastActivity = now
		if created {
			s.log.Info("player joined", zap.String("player", p.ID), zap.String("class", string(p.Class)))
			s.save(now)
		}
		pv, _ := s.state.PlayerView(p.ID)
		msg.Reply <- JoinResult{Player: pv, Created: created, Info: s.info()}

	case RemovePlayer:
		now := s.clock()
		removed := s.state.Remove(msg.PlayerID)
		if removed {
			s.lastActivity = now
			s.log.Info("player left", zap.String("player", msg.PlayerID))
			s.save(now)
		}
		msg.Reply <- removed

	case FromClient:
		s.lastActivity = s.clock()
		events, res := engine.Apply(s.state, msg.Intent)
		s.recordIntent(msg.Intent, res)
		for _, evt := range events {
			s.emit(evt)
		}
		if msg.Reply != nil {
			msg.Reply <- res
		}

	case Tick:
		start := time.Now()
		update := engine.Step(s.state, msg.Now.UnixMilli())
		if s.out != nil {
			s.out.Broadcast(s.code, types.EventGameUpdate, update)
		}
		s.metrics.ObserveTick(time.Since(start))

	case AddEnemy:
		s.state.AddEnemy(msg.Enemy)
		msg.Reply <- struct{}{}

	case GetState:
		msg.Reply <- View{
			Info:         s.info(),
			Snapshot:     s.state.Snapshot(),
			LastActivity: s.lastActivity,
			LastUpdate:   s.state.LastUpdate,
		}

	case Shutdown:
		return true
	}
	return false
}

func (s *Session) recordIntent(in engine.Intent, res engine.IntentResult) {
	if res.Accepted {
		s.metrics.Intent(string(in.Type), "accepted")
		return
	}
	s.metrics.Intent(string(in.Type), "rejected")
	s.log.Debug("intent rejected",
		zap.String("player", in.PlayerID), zap.String("type", string(in.Type)), zap.Error(res.Reason))
}

func (s *Session) emit(evt engine.Event) {
	if s.out == nil {
		return
	}
	switch evt.Type {
	case engine.EvtAbilityUsed:
		s.out.Broadcast(s.code, types.EventAbilityUsed, types.AbilityUsed{
			PlayerID:       evt.PlayerID,
			AbilityID:      evt.AbilityID,
			TargetID:       evt.TargetID,
			TargetPosition: evt.TargetPosition,
		})
	}
}

func (s *Session) info() types.SessionInfo {
	snap := s.state.Snapshot()
	return types.SessionInfo{
		SessionID:    s.code,
		Config:       s.cfg,
		CurrentPhase: types.PhaseLobby,
		Players:      snap.Players,
		PlayerCount:  len(snap.Players),
		CreatedAt:    s.createdAt.UnixMilli(),
	}
}

// finish runs after the last message. A discarded session's delete is queued
// here so no save from this actor can follow it.
func (s *Session) finish() {
	if s.forget.Load() && s.persist != nil {
		s.persist.Delete(s.code)
	}
}

func (s *Session) save(now time.Time) {
	if s.persist == nil {
		return
	}
	s.persist.Save(store.Record{
		Code:      s.code,
		Config:    s.cfg,
		Players:   s.state.Snapshot().Players,
		CreatedAt: s.createdAt,
		UpdatedAt: now,
	})
}
