package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/metrics"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/session"
	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrCodeSpaceExhausted = errors.New("could not mint a free session code")
	ErrHubClosed          = errors.New("hub closed")
	ErrSessionWatched     = errors.New("session has connected sockets")
)

const maxCodeAttempts = 16

// Close reasons sent with session-closed.
const (
	ReasonIdle     = "idle"
	ReasonTeardown = "teardown"
	ReasonShutdown = "shutdown"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Config types.SessionConfig
	Reply  chan createReply
}

type createReply struct {
	sess *session.Session
	err  error
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

type RemoveSession struct {
	Code   string
	Reason string
	Reply  chan error
}

type ListSessions struct {
	Reply chan []*session.Session
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

// Rooms is the part of the broadcast gateway the registry needs: sessions
// publish through it and teardown closes the room.
type Rooms interface {
	session.Broadcaster
	RoomSize(sessionID string) int
	CloseRoom(sessionID, event string, payload any)
}

// Bindings drops connection bindings when a session goes away.
type Bindings interface {
	UnbindSession(sessionID string) []string
}

// Records receives persistence writes from the session actors.
// Implementations must not block.
type Records interface {
	session.Persister
}

type Options struct {
	Rooms        Rooms
	Bindings     Bindings
	Records      Records
	Rules        engine.Rules
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	IdleTimeout  time.Duration
	SessionInbox int
	Clock        func() time.Time

	// NewCode mints candidate codes. Defaults to GenerateCode.
	NewCode func() (string, error)
}

// Hub is the session registry. Its map is owned by the loop goroutine; every
// lookup, insert and removal is a message.
type Hub struct {
	inbox    chan HubMsg
	done     chan struct{}
	sessions map[string]*session.Session
	ctx      context.Context
	cancel   context.CancelFunc
	opts     Options
	log      *zap.Logger
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewCode == nil {
		opts.NewCode = GenerateCode
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		done:     make(chan struct{}),
		sessions: make(map[string]*session.Session),
		ctx:      ctx,
		cancel:   cancel,
		opts:     opts,
		log:      opts.Logger.Named("hub"),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll(ReasonShutdown)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				s, err := h.create(msg.Config)
				msg.Reply <- createReply{sess: s, err: err}

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // may be nil

			case RemoveSession:
				msg.Reply <- h.remove(msg.Code, msg.Reason)

			case ListSessions:
				out := make([]*session.Session, 0, len(h.sessions))
				for _, s := range h.sessions {
					out = append(out, s)
				}
				msg.Reply <- out

			case ShutdownHub:
				h.closeAll(ReasonShutdown)
				h.cancel()
				return
			}
		}
	}
}

// create mints a code that is not live and starts the session actor.
func (h *Hub) create(cfg types.SessionConfig) (*session.Session, error) {
	for range maxCodeAttempts {
		code, err := h.opts.NewCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		if _, taken := h.sessions[code]; taken {
			continue
		}
		s := session.New(h.ctx, code, session.Options{
			Config:      cfg,
			Broadcaster: h.opts.Rooms,
			Persister:   h.opts.Records,
			Rules:       h.opts.Rules,
			Logger:      h.opts.Logger,
			Metrics:     h.opts.Metrics,
			InboxSize:   h.opts.SessionInbox,
			Clock:       h.opts.Clock,
		})
		h.sessions[code] = s
		h.opts.Metrics.SetSessions(len(h.sessions))
		h.log.Info("session created", zap.String("session", code))
		return s, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// remove drops a session for good. An idle eviction is refused when a socket
// joined the room after the sweep looked at it. The record delete is left to
// the session actor so it lands after any save still queued there.
func (h *Hub) remove(code, reason string) error {
	s, ok := h.sessions[code]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, code)
	}
	if reason == ReasonIdle && h.opts.Rooms != nil && h.opts.Rooms.RoomSize(code) > 0 {
		return fmt.Errorf("%w: %s", ErrSessionWatched, code)
	}
	delete(h.sessions, code)
	s.Discard()
	h.teardown(s, reason)
	h.opts.Metrics.SetSessions(len(h.sessions))
	h.log.Info("session removed", zap.String("session", code), zap.String("reason", reason))
	return nil
}

// teardown closes the room and drops its bindings. Callers stop the actor.
func (h *Hub) teardown(s *session.Session, reason string) {
	if h.opts.Rooms != nil {
		h.opts.Rooms.CloseRoom(s.Code(), types.EventSessionClosed,
			types.SessionClosed{SessionID: s.Code(), Reason: reason})
	}
	if h.opts.Bindings != nil {
		if conns := h.opts.Bindings.UnbindSession(s.Code()); len(conns) > 0 {
			h.log.Debug("unbound connections", zap.String("session", s.Code()), zap.Int("count", len(conns)))
		}
	}
}

// closeAll stops every session but keeps persisted records so a restart can
// still find them.
func (h *Hub) closeAll(reason string) {
	for _, s := range h.sessions {
		s.Close()
		h.teardown(s, reason)
	}
	clear(h.sessions)
	h.opts.Metrics.SetSessions(0)
}

// ask sends a message and waits for the reply, the caller's context, or the
// hub stopping.
func ask[T any](ctx context.Context, h *Hub, build func(reply chan T) HubMsg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	select {
	case h.inbox <- build(reply):
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Create starts a new session with spec as its first member.
func (h *Hub) Create(ctx context.Context, spec engine.PlayerSpec, cfg types.SessionConfig) (session.JoinResult, error) {
	r, err := ask(ctx, h, func(c chan createReply) HubMsg { return CreateSession{Config: cfg, Reply: c} })
	if err != nil {
		return session.JoinResult{}, err
	}
	if r.err != nil {
		return session.JoinResult{}, r.err
	}
	res, err := r.sess.Join(ctx, spec)
	if err != nil {
		_ = h.Remove(context.WithoutCancel(ctx), r.sess.Code(), ReasonTeardown)
		return session.JoinResult{}, fmt.Errorf("join creator: %w", err)
	}
	return res, nil
}

func (h *Hub) Get(ctx context.Context, code string) (*session.Session, error) {
	s, err := ask(ctx, h, func(c chan *session.Session) HubMsg { return GetSession{Code: code, Reply: c} })
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, code)
	}
	return s, nil
}

// Join adds spec to an existing session. Rejoining with a known player id
// returns that player's current state.
func (h *Hub) Join(ctx context.Context, code string, spec engine.PlayerSpec) (session.JoinResult, error) {
	s, err := h.Get(ctx, code)
	if err != nil {
		return session.JoinResult{}, err
	}
	res, err := s.Join(ctx, spec)
	if errors.Is(err, session.ErrClosed) {
		return session.JoinResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, code)
	}
	return res, err
}

func (h *Hub) Leave(ctx context.Context, code, playerID string) error {
	s, err := h.Get(ctx, code)
	if err != nil {
		return err
	}
	removed, err := s.Leave(ctx, playerID)
	if errors.Is(err, session.ErrClosed) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, code)
	}
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", engine.ErrPlayerNotFound, playerID)
	}
	return nil
}

// Remove tears a session down, closes its room and deletes its record. With
// ReasonIdle it fails with ErrSessionWatched while any socket is subscribed.
func (h *Hub) Remove(ctx context.Context, code, reason string) error {
	err, askErr := ask(ctx, h, func(c chan error) HubMsg { return RemoveSession{Code: code, Reason: reason, Reply: c} })
	if askErr != nil {
		return askErr
	}
	return err
}

// Sessions lists the live sessions in no particular order.
func (h *Hub) Sessions(ctx context.Context) ([]*session.Session, error) {
	return ask(ctx, h, func(c chan []*session.Session) HubMsg { return ListSessions{Reply: c} })
}

// Sweep evicts sessions with no subscribed connections whose last activity is
// older than the idle timeout, and returns the evicted codes.
func (h *Hub) Sweep(ctx context.Context) ([]string, error) {
	if h.opts.IdleTimeout <= 0 {
		return nil, nil
	}
	all, err := h.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := h.opts.Clock().Add(-h.opts.IdleTimeout)

	var evicted []string
	for _, s := range all {
		if h.opts.Rooms != nil && h.opts.Rooms.RoomSize(s.Code()) > 0 {
			continue
		}
		v, err := s.View(ctx)
		if err != nil {
			if errors.Is(err, session.ErrClosed) {
				continue
			}
			return evicted, err
		}
		if v.LastActivity.After(cutoff) {
			continue
		}
		if err := h.Remove(ctx, s.Code(), ReasonIdle); err != nil {
			if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionWatched) {
				continue
			}
			return evicted, err
		}
		h.opts.Metrics.Evicted()
		evicted = append(evicted, s.Code())
	}
	return evicted, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			evicted, err := h.Sweep(ctx)
			if err != nil && !errors.Is(err, ErrHubClosed) && ctx.Err() == nil {
				h.log.Warn("sweep failed", zap.Error(err))
			}
			if len(evicted) > 0 {
				h.log.Info("evicted idle sessions", zap.Strings("sessions", evicted))
			}
		}
	}
}

// Shutdown stops every session actor and then the hub itself.
func (h *Hub) Shutdown(ctx context.Context) error {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
