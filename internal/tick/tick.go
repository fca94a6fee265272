package tick

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/metrics"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/session"
)

// Target is a session that accepts ticks without blocking.
type Target interface {
	Code() string
	TryTick(now time.Time) bool
}

// Source lists the sessions to tick. *hub.Hub satisfies it through Adapt.
type Source interface {
	Targets(ctx context.Context) ([]Target, error)
}

// SessionLister is the registry method the loop consumes.
type SessionLister interface {
	Sessions(ctx context.Context) ([]*session.Session, error)
}

type listerSource struct{ l SessionLister }

func (s listerSource) Targets(ctx context.Context) ([]Target, error) {
	all, err := s.l.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Target, len(all))
	for i, sess := range all {
		out[i] = sess
	}
	return out, nil
}

// Adapt turns a session registry into a tick Source.
func Adapt(l SessionLister) Source { return listerSource{l: l} }

// Loop drives every live session at a fixed rate. It never runs simulation
// itself: each tick is a message on the session's own inbox.
type Loop struct {
	interval time.Duration
	src      Source
	log      *zap.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// Interval converts a rate in Hz to a ticker period.
func Interval(rate int) time.Duration {
	if rate <= 0 {
		panic("tick.Interval: rate must be > 0")
	}
	return time.Second / time.Duration(rate)
}

func NewLoop(interval time.Duration, src Source, log *zap.Logger, m *metrics.Metrics) *Loop {
	if interval <= 0 {
		panic("tick.NewLoop: interval must be > 0")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		interval: interval,
		src:      src,
		log:      log.Named("tick"),
		metrics:  m,
		clock:    time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("tick loop started", zap.Duration("interval", l.interval))
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("tick loop stopped")
			return nil
		case <-t.C:
			l.Once(ctx, l.clock())
		}
	}
}

// Once delivers one tick stamped now to every target and returns how many
// accepted it.
func (l *Loop) Once(ctx context.Context, now time.Time) int {
	targets, err := l.src.Targets(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			l.log.Warn("list sessions", zap.Error(err))
		}
		return 0
	}
	delivered := 0
	for _, tg := range targets {
		if tg.TryTick(now) {
			delivered++
			continue
		}
		l.metrics.TickSkipped()
		l.log.Debug("tick skipped", zap.String("session", tg.Code()))
	}
	return delivered
}
