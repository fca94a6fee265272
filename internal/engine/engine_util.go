package engine

import (
	"maps"
	"math"
	"slices"
	"strings"
)

const (
	DefaultMoveSpeed = 5.0
	ArrivalEpsilon   = 0.1
)

// Each joiner spawns one SpawnStep further along both axes than the last.
var SpawnOrigin = Position{Floor: 0, X: 10, Y: 10}

const SpawnStep = 2.0

func NewEmptyState(now int64) *State {
	return &State{
		Players:    map[string]*Player{},
		Enemies:    map[string]*Enemy{},
		LastUpdate: now,
	}
}

type PlayerSpec struct {
	ID    string
	Name  string
	Class Class
}

// Join adds a player at the next spawn point. An existing player with the same
// id is returned untouched and created is false.
func (s *State) Join(spec PlayerSpec, now int64) (p *Player, created bool) {
	if existing, ok := s.Players[spec.ID]; ok {
		return existing, false
	}

	def := ClassCatalog[spec.Class]
	off := float64(s.Spawns) * SpawnStep
	s.Spawns++

	p = &Player{
		ID:               spec.ID,
		Name:             spec.Name,
		Class:            spec.Class,
		Position:         Position{Floor: SpawnOrigin.Floor, X: SpawnOrigin.X + off, Y: SpawnOrigin.Y + off},
		Health:           def.BaseHealth,
		MaxHealth:        def.BaseHealth,
		MoveSpeed:        DefaultMoveSpeed,
		Abilities:        slices.Clone(def.Abilities),
		AbilityCooldowns: map[string]int64{},
		JoinedAt:         now,
	}
	s.Players[p.ID] = p
	return p, true
}

func (s *State) Remove(playerID string) bool {
	if _, ok := s.Players[playerID]; !ok {
		return false
	}
	delete(s.Players, playerID)
	return true
}

// PlayerView returns a copy of one player.
func (s *State) PlayerView(id string) (Player, bool) {
	p, ok := s.Players[id]
	if !ok {
		return Player{}, false
	}
	return clonePlayer(p), true
}

// AddEnemy inserts or replaces an enemy. Encounter generation lives outside
// the simulation; this is its entry point.
func (s *State) AddEnemy(e Enemy) {
	if e.MaxHealth == 0 {
		e.MaxHealth = e.Health
	}
	e.Abilities = slices.Clone(e.Abilities)
	s.Enemies[e.ID] = &e
}

func Distance(a, b Position) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// InRange reports whether b is within r of a. Entities on different floors
// are never in range.
func InRange(a, b Position, r float64) bool {
	if a.Floor != b.Floor {
		return false
	}
	return Distance(a, b) <= r
}

// Snapshot is the full game-state payload sent to a connection on join.
type Snapshot struct {
	Players []Player `json:"players"`
	Enemies []Enemy  `json:"enemies"`
}

func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Players: make([]Player, 0, len(s.Players)),
		Enemies: s.enemyList(),
	}
	for _, id := range sortedKeys(s.Players) {
		snap.Players = append(snap.Players, clonePlayer(s.Players[id]))
	}
	return snap
}

func (s *State) enemyList() []Enemy {
	out := make([]Enemy, 0, len(s.Enemies))
	for _, id := range sortedKeys(s.Enemies) {
		e := *s.Enemies[id]
		e.Abilities = slices.Clone(e.Abilities)
		out = append(out, e)
	}
	return out
}

func clonePlayer(p *Player) Player {
	c := *p
	if p.TargetPosition != nil {
		tp := *p.TargetPosition
		c.TargetPosition = &tp
	}
	c.Abilities = slices.Clone(p.Abilities)
	c.AbilityCooldowns = maps.Clone(p.AbilityCooldowns)
	if c.AbilityCooldowns == nil {
		c.AbilityCooldowns = map[string]int64{}
	}
	return c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, strings.Compare)
	return keys
}
