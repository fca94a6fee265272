package ws

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/broadcast"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/directory"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/hub"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/session"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/validate"
	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	readLimit    = 8 << 10
)

// Registry looks sessions up by code.
type Registry interface {
	Get(ctx context.Context, code string) (*session.Session, error)
}

type Options struct {
	Registry  Registry
	Gateway   *broadcast.Gateway
	Directory *directory.Directory
	Logger    *zap.Logger
	// OriginPatterns restricts cross-origin sockets. With none set, Insecure
	// skips the origin check entirely.
	OriginPatterns []string
	Insecure       bool
	Clock          func() time.Time
}

type Handler struct {
	opts Options
	log  *zap.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Handler{opts: opts, log: opts.Logger.Named("ws")}
}

// ServeHTTP upgrades GET /ws?session=CODE&player=ID[&encoding=msgpack]. The
// player must already have joined the session over HTTP.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, playerID := strings.ToUpper(q.Get("session")), q.Get("player")
	if code == "" || playerID == "" {
		http.Error(w, "missing session or player", http.StatusBadRequest)
		return
	}
	codec, ok := broadcast.ParseCodec(q.Get("encoding"))
	if !ok {
		http.Error(w, "unsupported encoding", http.StatusBadRequest)
		return
	}

	s, err := h.opts.Registry.Get(r.Context(), code)
	if err != nil {
		if errors.Is(err, hub.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "session lookup failed", http.StatusServiceUnavailable)
		return
	}
	v, err := s.View(r.Context())
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if !slices.ContainsFunc(v.Snapshot.Players, func(p engine.Player) bool { return p.ID == playerID }) {
		http.Error(w, "player not in session", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.OriginPatterns,
		InsecureSkipVerify: h.opts.Insecure && len(h.opts.OriginPatterns) == 0,
	})
	if err != nil {
		h.log.Debug("accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	connID := uuid.NewString()
	log := h.log.With(zap.String("session", code), zap.String("player", playerID), zap.String("conn", connID))

	h.opts.Directory.Bind(connID, code, playerID)
	sub := h.opts.Gateway.Subscribe(code, connID, codec)
	h.opts.Gateway.Send(connID, types.EventConnectionAcknowledged, types.ConnectionAcknowledged{
		PlayerID:  playerID,
		SessionID: code,
		Timestamp: h.opts.Clock().UnixMilli(),
	})
	defer func() {
		h.opts.Gateway.Unsubscribe(connID)
		h.opts.Directory.Unbind(connID)
		log.Info("socket closed")
	}()
	log.Info("socket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writer goroutine: the only place frames are written.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, sub, log)
	}()

	if v, err := s.View(ctx); err == nil {
		h.opts.Gateway.Send(connID, types.EventGameState, v.Snapshot)
	}

	h.readLoop(ctx, conn, s, connID, log)

	cancel()
	h.opts.Gateway.Unsubscribe(connID)
	<-writerDone
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscriber, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-sub.Outbox():
			if !ok {
				// Room closed or connection replaced.
				_ = conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			typ := websocket.MessageText
			if f.Binary {
				typ = websocket.MessageBinary
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, typ, f.Data)
			wcancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				conn.CloseNow()
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, s *session.Session, connID string, log *zap.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		msg, err := validate.DecodeClientMessage(data)
		if err != nil {
			h.reject(connID, "", err)
			continue
		}
		in, err := validate.ParseIntent(msg)
		if err != nil {
			h.reject(connID, msg.Type, err)
			continue
		}

		b, ok := h.opts.Directory.Resolve(connID)
		if !ok {
			log.Debug("intent from unbound connection dropped", zap.String("type", msg.Type))
			continue
		}
		in.PlayerID = b.PlayerID
		in.Timestamp = h.opts.Clock().UnixMilli()

		res, err := s.Submit(ctx, in)
		if err != nil {
			if !errors.Is(err, session.ErrClosed) && ctx.Err() == nil {
				log.Warn("submit intent", zap.Error(err))
			}
			return
		}
		if !res.Accepted {
			h.reject(connID, msg.Type, res.Reason)
		}
	}
}

func (h *Handler) reject(connID, intentType string, err error) {
	h.opts.Gateway.Send(connID, types.EventIntentRejected, types.IntentRejected{
		Type:   intentType,
		Reason: err.Error(),
		Fields: validate.Fields(err),
	})
}
