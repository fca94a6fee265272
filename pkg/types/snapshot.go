package types

import "github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"

const PhaseLobby = "lobby"

// SessionConfig is echoed back to clients. MaxPlayers is informational on the
// real-time path and is not enforced.
type SessionConfig struct {
	Difficulty string `json:"difficulty,omitempty"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
}

// SessionInfo is the request/response view of a session returned by create,
// join and lookup.
type SessionInfo struct {
	SessionID    string          `json:"sessionId"`
	Config       SessionConfig   `json:"config"`
	CurrentPhase string          `json:"currentPhase"`
	Players      []engine.Player `json:"players"`
	PlayerCount  int             `json:"playerCount"`
	CreatedAt    int64           `json:"createdAt"`
}
