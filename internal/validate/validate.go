package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/multierr"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	itypes "github.com/DoyleJ11/dungeon-realtime-backend/internal/types"
	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

var ErrInvalid = errors.New("invalid input")

const (
	MaxDisplayName = 32
	MaxPlayerID    = 64
	MaxPlayers     = 16
)

// ValidationError lists every field that failed, not just the first.
type ValidationError struct {
	Fields []types.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

type fieldError types.FieldError

func (f fieldError) Error() string { return f.Field + ": " + f.Message }

// checker accumulates field errors with multierr.
type checker struct {
	err error
}

func (c *checker) fail(field, format string, args ...any) {
	c.err = multierr.Append(c.err, fieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) result() error {
	if c.err == nil {
		return nil
	}
	var fields []types.FieldError
	for _, err := range multierr.Errors(c.err) {
		var fe fieldError
		if errors.As(err, &fe) {
			fields = append(fields, types.FieldError(fe))
		}
	}
	return &ValidationError{Fields: fields}
}

// Fields extracts the field list from err, if it is a validation error.
func Fields(err error) []types.FieldError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// ParseIntent turns a client envelope into an engine intent. PlayerID and
// Timestamp are left for the caller to stamp.
func ParseIntent(msg itypes.ClientMessage) (engine.Intent, error) {
	c := &checker{}
	in := engine.Intent{Type: engine.IntentType(msg.Type)}

	switch in.Type {
	case engine.IntentMoveTo:
		var p itypes.MoveToPayload
		if !decodePayload(c, msg.Payload, &p) {
			break
		}
		if p.TargetPosition == nil {
			c.fail("payload.targetPosition", "required")
			break
		}
		in.TargetPosition = position(c, "payload.targetPosition", p.TargetPosition)

	case engine.IntentSetTarget:
		var p itypes.SetTargetPayload
		if !decodePayload(c, msg.Payload, &p) {
			break
		}
		in.TargetType = targetType(c, "payload.targetType", p.TargetType)
		if p.TargetID != nil {
			if *p.TargetID == "" {
				c.fail("payload.targetId", "must not be empty; use null to clear")
			}
			id := *p.TargetID
			in.TargetID = &id
		}

	case engine.IntentUseAbility:
		var p itypes.UseAbilityPayload
		if !decodePayload(c, msg.Payload, &p) {
			break
		}
		if p.AbilityID == "" {
			c.fail("payload.abilityId", "required")
		}
		in.AbilityID = p.AbilityID
		in.TargetType = targetType(c, "payload.targetType", p.TargetType)
		if p.TargetID != nil {
			if *p.TargetID == "" {
				c.fail("payload.targetId", "must not be empty")
			}
			id := *p.TargetID
			in.TargetID = &id
		}
		if p.TargetPosition != nil {
			in.TargetPosition = position(c, "payload.targetPosition", p.TargetPosition)
		}

	case engine.IntentStopMoving:

	case "":
		c.fail("type", "required")
	default:
		c.fail("type", "unknown intent type %q", msg.Type)
	}

	if err := c.result(); err != nil {
		return engine.Intent{}, err
	}
	return in, nil
}

// DecodeClientMessage parses one inbound frame.
func DecodeClientMessage(data []byte) (itypes.ClientMessage, error) {
	var msg itypes.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c := &checker{}
		c.fail("message", "malformed: %v", err)
		return itypes.ClientMessage{}, c.result()
	}
	return msg, nil
}

func decodePayload(c *checker, raw json.RawMessage, dst any) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		c.fail("payload", "required")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.fail("payload", "malformed: %v", err)
		return false
	}
	return true
}

func position(c *checker, field string, p *itypes.Position) *engine.Position {
	ok := true
	if p.Floor == nil {
		c.fail(field+".floor", "required")
		ok = false
	} else if *p.Floor < 0 {
		c.fail(field+".floor", "must be >= 0")
		ok = false
	}
	for _, axis := range []struct {
		name string
		v    *float64
	}{{"x", p.X}, {"y", p.Y}} {
		switch {
		case axis.v == nil:
			c.fail(field+"."+axis.name, "required")
			ok = false
		case math.IsNaN(*axis.v) || math.IsInf(*axis.v, 0):
			c.fail(field+"."+axis.name, "must be finite")
			ok = false
		}
	}
	if !ok {
		return nil
	}
	return &engine.Position{Floor: *p.Floor, X: *p.X, Y: *p.Y}
}

func targetType(c *checker, field, s string) engine.TargetType {
	switch tt := engine.TargetType(s); tt {
	case "", engine.TargetPlayer, engine.TargetEnemy:
		return tt
	default:
		c.fail(field, "must be %q or %q", engine.TargetPlayer, engine.TargetEnemy)
		return ""
	}
}

func playerSpec(c *checker, playerID, displayName, class string) engine.PlayerSpec {
	name := strings.TrimSpace(displayName)
	switch {
	case name == "":
		c.fail("displayName", "required")
	case utf8.RuneCountInString(name) > MaxDisplayName:
		c.fail("displayName", "must be at most %d characters", MaxDisplayName)
	}
	cls, ok := engine.ParseClass(class)
	if !ok {
		c.fail("class", "must be one of warrior, ranger, mage, cleric")
	}
	if len(playerID) > MaxPlayerID {
		c.fail("playerId", "must be at most %d characters", MaxPlayerID)
	}
	return engine.PlayerSpec{ID: playerID, Name: name, Class: cls}
}

// CreateSession validates a create request. The returned spec has an empty
// ID when the client did not supply one.
func CreateSession(req itypes.CreateSessionRequest) (engine.PlayerSpec, types.SessionConfig, error) {
	c := &checker{}
	spec := playerSpec(c, req.PlayerID, req.DisplayName, req.Class)
	var cfg types.SessionConfig
	if req.Config != nil {
		cfg = *req.Config
		if cfg.MaxPlayers < 0 || cfg.MaxPlayers > MaxPlayers {
			c.fail("config.maxPlayers", "must be between 0 and %d", MaxPlayers)
		}
		if len(cfg.Difficulty) > 32 {
			c.fail("config.difficulty", "must be at most 32 characters")
		}
	}
	if err := c.result(); err != nil {
		return engine.PlayerSpec{}, types.SessionConfig{}, err
	}
	return spec, cfg, nil
}

func JoinSession(req itypes.JoinSessionRequest) (engine.PlayerSpec, error) {
	c := &checker{}
	spec := playerSpec(c, req.PlayerID, req.DisplayName, req.Class)
	if err := c.result(); err != nil {
		return engine.PlayerSpec{}, err
	}
	return spec, nil
}

func LeaveSession(req itypes.LeaveSessionRequest) (string, error) {
	c := &checker{}
	if req.PlayerID == "" {
		c.fail("playerId", "required")
	}
	if err := c.result(); err != nil {
		return "", err
	}
	return req.PlayerID, nil
}

// SpawnEnemy validates an enemy placement. The returned enemy has an empty ID
// when none was supplied.
func SpawnEnemy(req itypes.SpawnEnemyRequest) (engine.Enemy, error) {
	c := &checker{}
	if strings.TrimSpace(req.Type) == "" {
		c.fail("type", "required")
	}
	if req.Health <= 0 {
		c.fail("health", "must be > 0")
	}
	var pos *engine.Position
	if req.Position == nil {
		c.fail("position", "required")
	} else {
		pos = position(c, "position", req.Position)
	}
	if err := c.result(); err != nil {
		return engine.Enemy{}, err
	}
	name := req.Name
	if name == "" {
		name = req.Type
	}
	return engine.Enemy{
		ID:        req.ID,
		Type:      req.Type,
		Name:      name,
		Health:    req.Health,
		MaxHealth: req.Health,
		Position:  *pos,
	}, nil
}
