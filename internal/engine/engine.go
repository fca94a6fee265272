package engine

import (
	"errors"
	"fmt"
)

var ErrPlayerNotFound = errors.New("player not found")
var ErrTargetNotFound = errors.New("target not found")
var ErrUnknownAbility = errors.New("unknown ability")
var ErrCooldownActive = errors.New("ability on cooldown")
var ErrOutOfRange = errors.New("target out of range")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrOtherFloor = errors.New("target position is on another floor")

type TargetType string

const (
	TargetPlayer TargetType = "player"
	TargetEnemy  TargetType = "enemy"
)

type Position struct {
	Floor int     `json:"floor"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Player struct {
	ID               string           `json:"playerId"`
	Name             string           `json:"displayName"`
	Class            Class            `json:"class"`
	Position         Position         `json:"position"`
	TargetPosition   *Position        `json:"targetPosition,omitempty"`
	Velocity         Vec              `json:"velocity"`
	Health           int              `json:"health"`
	MaxHealth        int              `json:"maxHealth"`
	MoveSpeed        float64          `json:"moveSpeed"`
	TargetID         string           `json:"targetId,omitempty"`
	TargetType       TargetType       `json:"targetType,omitempty"`
	Abilities        []Ability        `json:"abilities"`
	AbilityCooldowns map[string]int64 `json:"abilityCooldowns"`
	JoinedAt         int64            `json:"joinedAt"`
}

type Enemy struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Health    int       `json:"health"`
	MaxHealth int       `json:"maxHealth"`
	Position  Position  `json:"position"`
	Abilities []Ability `json:"abilities"`
	TargetID  string    `json:"targetId,omitempty"`
}

// State is the authoritative state of one game session. It is owned by
// exactly one goroutine; everything handed out of it is copied first.
type State struct {
	Players    map[string]*Player
	Enemies    map[string]*Enemy
	LastUpdate int64 // epoch ms of the last processed tick
	Spawns     int
	Rules      Rules
}

type Rules struct {
	Effects     EffectResolver
	EnemyPolicy EnemyPolicy
}

type IntentType string

const (
	IntentMoveTo     IntentType = "MOVE_TO"
	IntentSetTarget  IntentType = "SET_TARGET"
	IntentUseAbility IntentType = "USE_ABILITY"
	IntentStopMoving IntentType = "STOP_MOVING"
)

/*
	MOVE_TO      -> targetPosition set, targetId cleared
	SET_TARGET   -> targetId set (or cleared when nil), existence checked first
	USE_ABILITY  -> cooldown + range checks -> cooldown consumed -> EvtAbilityUsed
	STOP_MOVING  -> targetPosition cleared, velocity zeroed

	PlayerID and Timestamp are stamped by the server, never read from the client.
*/

type Intent struct {
	Type           IntentType
	PlayerID       string
	Timestamp      int64 // epoch ms
	TargetPosition *Position
	TargetID       *string
	TargetType     TargetType
	AbilityID      string
}

type EventType string

const (
	EvtAbilityUsed EventType = "ability-used"
)

type Event struct {
	Type           EventType
	PlayerID       string
	AbilityID      string
	TargetID       string
	TargetPosition *Position
}

// IntentResult reports whether an intent mutated the state. Rejections carry
// one of the package's sentinel errors as Reason.
type IntentResult struct {
	Accepted bool
	Reason   error
}

func accepted() IntentResult { return IntentResult{Accepted: true} }

func rejected(err error) IntentResult { return IntentResult{Reason: err} }

func (r IntentResult) Err() error {
	if r.Accepted {
		return nil
	}
	return r.Reason
}

// Apply validates the intent against s and mutates s only when it is accepted.
func Apply(s *State, in Intent) ([]Event, IntentResult) {
	p, ok := s.Players[in.PlayerID]
	if !ok {
		return nil, rejected(ErrPlayerNotFound)
	}
	s.clearStaleTarget(p)

	switch in.Type {
	case IntentMoveTo:
		if in.TargetPosition == nil {
			return nil, rejected(fmt.Errorf("%w: move without target position", ErrUnsupportedCommand))
		}
		// Floors change through level transitions, never by walking.
		if in.TargetPosition.Floor != p.Position.Floor {
			return nil, rejected(ErrOtherFloor)
		}
		tp := *in.TargetPosition
		p.TargetPosition = &tp
		// Walking and targeting are not modelled as simultaneous.
		p.TargetID = ""
		p.TargetType = ""
		return nil, accepted()

	case IntentSetTarget:
		if in.TargetID == nil {
			p.TargetID = ""
			p.TargetType = ""
			return nil, accepted()
		}
		if _, ok := s.lookup(in.TargetType, *in.TargetID); !ok {
			return nil, rejected(ErrTargetNotFound)
		}
		p.TargetID = *in.TargetID
		p.TargetType = in.TargetType
		return nil, accepted()

	case IntentUseAbility:
		return useAbility(s, p, in)

	case IntentStopMoving:
		p.TargetPosition = nil
		p.Velocity = Vec{}
		return nil, accepted()

	default:
		return nil, rejected(ErrUnsupportedCommand)
	}
}

func useAbility(s *State, p *Player, in Intent) ([]Event, IntentResult) {
	ab, ok := p.ability(in.AbilityID)
	if !ok {
		return nil, rejected(ErrUnknownAbility)
	}

	now := in.Timestamp
	if ready, ok := p.AbilityCooldowns[ab.ID]; ok && now < ready {
		return nil, rejected(ErrCooldownActive)
	}

	evt := Event{Type: EvtAbilityUsed, PlayerID: p.ID, AbilityID: ab.ID}
	if in.TargetID != nil {
		pos, ok := s.lookup(in.TargetType, *in.TargetID)
		if !ok {
			return nil, rejected(ErrTargetNotFound)
		}
		if !InRange(p.Position, pos, ab.Range) {
			return nil, rejected(ErrOutOfRange)
		}
		evt.TargetID = *in.TargetID
	}
	if in.TargetPosition != nil {
		tp := *in.TargetPosition
		evt.TargetPosition = &tp
	}

	if p.AbilityCooldowns == nil {
		p.AbilityCooldowns = map[string]int64{}
	}
	p.AbilityCooldowns[ab.ID] = now + ab.CooldownMs

	if s.Rules.Effects != nil {
		s.Rules.Effects.Resolve(s, p, ab, in)
	}
	return []Event{evt}, accepted()
}

func (p *Player) ability(id string) (Ability, bool) {
	for _, ab := range p.Abilities {
		if ab.ID == id {
			return ab, true
		}
	}
	return Ability{}, false
}

// lookup resolves an entity position. An empty target type searches players
// first, then enemies.
func (s *State) lookup(tt TargetType, id string) (Position, bool) {
	if tt == TargetPlayer || tt == "" {
		if p, ok := s.Players[id]; ok {
			return p.Position, true
		}
	}
	if tt == TargetEnemy || tt == "" {
		if e, ok := s.Enemies[id]; ok {
			return e.Position, true
		}
	}
	return Position{}, false
}

func (s *State) clearStaleTarget(p *Player) {
	if p.TargetID == "" {
		return
	}
	if _, ok := s.lookup(p.TargetType, p.TargetID); !ok {
		p.TargetID = ""
		p.TargetType = ""
	}
}
