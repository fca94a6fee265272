package engine

// EffectResolver applies the effect of an accepted ability. It runs after the
// cooldown has been consumed.
type EffectResolver interface {
	Resolve(s *State, actor *Player, ab Ability, in Intent)
}

type NoEffects struct{}

func (NoEffects) Resolve(*State, *Player, Ability, Intent) {}

// DirectEffects applies an ability's magnitude to its single target: damage
// for enemy abilities, healing for ally and self abilities. Area effects and
// mitigation are not modelled.
type DirectEffects struct{}

func (DirectEffects) Resolve(s *State, actor *Player, ab Ability, in Intent) {
	if ab.Magnitude == 0 {
		return
	}
	switch ab.TargetType {
	case AbilityTargetEnemy:
		if in.TargetID == nil {
			return
		}
		if e, ok := s.Enemies[*in.TargetID]; ok {
			e.Health = clamp(e.Health-ab.Magnitude, 0, e.MaxHealth)
		}
	case AbilityTargetAlly:
		target := actor
		if in.TargetID != nil {
			p, ok := s.Players[*in.TargetID]
			if !ok {
				return
			}
			target = p
		}
		target.Health = clamp(target.Health+ab.Magnitude, 0, target.MaxHealth)
	case AbilityTargetSelf:
		actor.Health = clamp(actor.Health+ab.Magnitude, 0, actor.MaxHealth)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
