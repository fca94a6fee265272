package engine

import (
	"maps"
	"math"
)

// EnemyPolicy is the enemy AI hook run once per enemy per tick. It may only
// touch the enemy's position, health and target.
type EnemyPolicy func(s *State, e *Enemy, dt float64)

type PlayerDelta struct {
	PlayerID         string           `json:"playerId"`
	Position         Position         `json:"position"`
	Velocity         Vec              `json:"velocity"`
	Health           int              `json:"health"`
	TargetID         string           `json:"targetId,omitempty"`
	AbilityCooldowns map[string]int64 `json:"abilityCooldowns"`
}

// Update is the per-tick game-update payload.
type Update struct {
	Players []PlayerDelta `json:"players"`
	Enemies []Enemy       `json:"enemies"`
}

// Step advances the simulation to now (epoch ms) and returns the resulting
// update. Intents queued before the tick must already have been applied.
func Step(s *State, now int64) Update {
	dt := float64(now-s.LastUpdate) / 1000
	if dt < 0 {
		dt = 0
	}
	s.LastUpdate = now

	for _, id := range sortedKeys(s.Players) {
		p := s.Players[id]
		s.clearStaleTarget(p)
		advance(p, dt)
	}

	if s.Rules.EnemyPolicy != nil {
		for _, id := range sortedKeys(s.Enemies) {
			s.Rules.EnemyPolicy(s, s.Enemies[id], dt)
		}
	}

	return s.update()
}

// advance moves p linearly toward its target point. There is no pathing;
// walls are not considered.
func advance(p *Player, dt float64) {
	tp := p.TargetPosition
	if tp == nil {
		return
	}

	dx := tp.X - p.Position.X
	dy := tp.Y - p.Position.Y
	dist := math.Hypot(dx, dy)
	if dist <= ArrivalEpsilon {
		arrive(p)
		return
	}

	ratio := math.Min(p.MoveSpeed*dt/dist, 1)
	if ratio >= 1 {
		p.Position.X = tp.X
		p.Position.Y = tp.Y
		arrive(p)
		return
	}

	p.Position.X += dx * ratio
	p.Position.Y += dy * ratio
	p.Velocity = Vec{X: dx / dist * p.MoveSpeed, Y: dy / dist * p.MoveSpeed}
}

func arrive(p *Player) {
	p.TargetPosition = nil
	p.Velocity = Vec{}
}

func (s *State) update() Update {
	u := Update{
		Players: make([]PlayerDelta, 0, len(s.Players)),
		Enemies: s.enemyList(),
	}
	for _, id := range sortedKeys(s.Players) {
		p := s.Players[id]
		cd := maps.Clone(p.AbilityCooldowns)
		if cd == nil {
			cd = map[string]int64{}
		}
		u.Players = append(u.Players, PlayerDelta{
			PlayerID:         p.ID,
			Position:         p.Position,
			Velocity:         p.Velocity,
			Health:           p.Health,
			TargetID:         p.TargetID,
			AbilityCooldowns: cd,
		})
	}
	return u
}
