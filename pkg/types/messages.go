package types

import "github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"

// Server -> Client events. Every frame is an Envelope; JSON text frames by
// default, MessagePack binary frames when the socket asked for them.
const (
	EventConnectionAcknowledged = "connection-acknowledged"
	EventGameState              = "game-state"
	EventGameUpdate             = "game-update"
	EventAbilityUsed            = "ability-used"
	EventIntentRejected         = "intent-rejected"
	EventSessionClosed          = "session-closed"
)

type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// connection-acknowledged: sent once on join.
type ConnectionAcknowledged struct {
	PlayerID  string `json:"playerId"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// ability-used: sent to the room on accepted USE_ABILITY.
type AbilityUsed struct {
	PlayerID       string           `json:"playerId"`
	AbilityID      string           `json:"abilityId"`
	TargetID       string           `json:"targetId,omitempty"`
	TargetPosition *engine.Position `json:"targetPosition,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// intent-rejected: sent only to the connection whose intent was dropped.
type IntentRejected struct {
	Type   string       `json:"type"`
	Reason string       `json:"reason"`
	Fields []FieldError `json:"fields,omitempty"`
}

// session-closed: sent to the room before it is torn down.
type SessionClosed struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}
