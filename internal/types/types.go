package types

import (
	"encoding/json"

	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

// ClientMessage is the inbound socket envelope. playerId and timestamp are
// never read from it; the server stamps both.
type ClientMessage struct {
	Type    string          `json:"type" jsonschema:"required,enum=MOVE_TO,enum=SET_TARGET,enum=USE_ABILITY,enum=STOP_MOVING"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Position mirrors engine.Position with pointer fields so a missing
// coordinate can be told apart from zero.
type Position struct {
	Floor *int     `json:"floor" jsonschema:"required,minimum=0"`
	X     *float64 `json:"x" jsonschema:"required"`
	Y     *float64 `json:"y" jsonschema:"required"`
}

type MoveToPayload struct {
	TargetPosition *Position `json:"targetPosition" jsonschema:"required"`
}

// SetTargetPayload with a null targetId clears the current target.
type SetTargetPayload struct {
	TargetID   *string `json:"targetId"`
	TargetType string  `json:"targetType,omitempty" jsonschema:"enum=player,enum=enemy"`
}

type UseAbilityPayload struct {
	AbilityID      string    `json:"abilityId" jsonschema:"required,minLength=1"`
	TargetID       *string   `json:"targetId,omitempty"`
	TargetType     string    `json:"targetType,omitempty" jsonschema:"enum=player,enum=enemy"`
	TargetPosition *Position `json:"targetPosition,omitempty"`
}

// HTTP bodies.

type CreateSessionRequest struct {
	DisplayName string               `json:"displayName" jsonschema:"required,minLength=1,maxLength=32"`
	Class       string               `json:"class" jsonschema:"required,enum=warrior,enum=ranger,enum=mage,enum=cleric"`
	PlayerID    string               `json:"playerId,omitempty" jsonschema:"maxLength=64"`
	Config      *types.SessionConfig `json:"config,omitempty"`
}

type JoinSessionRequest struct {
	DisplayName string `json:"displayName" jsonschema:"required,minLength=1,maxLength=32"`
	Class       string `json:"class" jsonschema:"required,enum=warrior,enum=ranger,enum=mage,enum=cleric"`
	PlayerID    string `json:"playerId,omitempty" jsonschema:"maxLength=64"`
}

type LeaveSessionRequest struct {
	PlayerID string `json:"playerId" jsonschema:"required,minLength=1"`
}

type SpawnEnemyRequest struct {
	ID       string    `json:"id,omitempty"`
	Type     string    `json:"type" jsonschema:"required,minLength=1"`
	Name     string    `json:"name,omitempty"`
	Health   int       `json:"health" jsonschema:"required,minimum=1"`
	Position *Position `json:"position" jsonschema:"required"`
}

// SessionResponse is what create and join return: the session view plus the
// id the caller should connect with.
type SessionResponse struct {
	types.SessionInfo
	PlayerID string `json:"playerId"`
}

type ErrorResponse struct {
	Error  string             `json:"error"`
	Fields []types.FieldError `json:"fields,omitempty"`
}
