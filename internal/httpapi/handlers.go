package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/hub"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/session"
	itypes "github.com/DoyleJ11/dungeon-realtime-backend/internal/types"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/validate"
)

const maxBodyBytes = 64 << 10

var errMalformedBody = errors.New("malformed JSON body")

type API struct {
	hub *hub.Hub
	log *zap.Logger
}

func NewAPI(h *hub.Hub, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{hub: h, log: log.Named("http")}
}

func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req itypes.CreateSessionRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	spec, cfg, err := validate.CreateSession(req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	res, err := a.hub.Create(r.Context(), spec, cfg)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response(res))
}

func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.hub.Get(r.Context(), sessionCode(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	v, err := s.View(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Info)
}

func (a *API) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req itypes.JoinSessionRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	spec, err := validate.JoinSession(req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	res, err := a.hub.Join(r.Context(), sessionCode(r), spec)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response(res))
}

func (a *API) LeaveSession(w http.ResponseWriter, r *http.Request) {
	var req itypes.LeaveSessionRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	playerID, err := validate.LeaveSession(req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.hub.Leave(r.Context(), sessionCode(r), playerID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.hub.Remove(r.Context(), sessionCode(r), hub.ReasonTeardown); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SpawnEnemy places an enemy in a live session. Encounter generation is not
// part of this server; this is the hook it calls.
func (a *API) SpawnEnemy(w http.ResponseWriter, r *http.Request) {
	var req itypes.SpawnEnemyRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	e, err := validate.SpawnEnemy(req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s, err := a.hub.Get(r.Context(), sessionCode(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := s.SpawnEnemy(r.Context(), e); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) Schemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, validate.Schemas())
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func response(res session.JoinResult) itypes.SessionResponse {
	return itypes.SessionResponse{SessionInfo: res.Info, PlayerID: res.Player.ID}
}

func sessionCode(r *http.Request) string {
	return strings.ToUpper(chi.URLParam(r, "code"))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	resp := itypes.ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errMalformedBody):
		status = http.StatusBadRequest
	case errors.Is(err, validate.ErrInvalid):
		status = http.StatusBadRequest
		resp.Error = "validation failed"
		resp.Fields = validate.Fields(err)
	case errors.Is(err, hub.ErrSessionNotFound), errors.Is(err, session.ErrClosed):
		status = http.StatusNotFound
		resp.Error = "session not found"
	case errors.Is(err, engine.ErrPlayerNotFound):
		status = http.StatusNotFound
		resp.Error = "player not found"
	case errors.Is(err, hub.ErrCodeSpaceExhausted), errors.Is(err, hub.ErrHubClosed):
		status = http.StatusServiceUnavailable
	default:
		a.log.Error("request failed", zap.Error(err))
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
