package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newStateWith(t *testing.T, specs ...PlayerSpec) *State {
	t.Helper()
	s := NewEmptyState(0)
	for _, spec := range specs {
		_, created := s.Join(spec, 0)
		require.True(t, created, "join %s", spec.ID)
	}
	return s
}

func TestStep_MovesTowardTarget(t *testing.T) {
	cases := []struct {
		name         string
		target       Position
		wantPos      Position
		wantVelocity Vec
		wantArrived  bool
	}{
		{
			name:         "arrives exactly when move distance equals distance",
			target:       Position{X: 15, Y: 10},
			wantPos:      Position{X: 15, Y: 10},
			wantVelocity: Vec{},
			wantArrived:  true,
		},
		{
			name:         "half way when target is twice as far",
			target:       Position{X: 20, Y: 10},
			wantPos:      Position{X: 15, Y: 10},
			wantVelocity: Vec{X: 5, Y: 0},
			wantArrived:  false,
		},
		{
			name:         "overshoot is clamped to the target",
			target:       Position{X: 12, Y: 10},
			wantPos:      Position{X: 12, Y: 10},
			wantVelocity: Vec{},
			wantArrived:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStateWith(t, PlayerSpec{ID: "p1", Name: "Ana", Class: ClassWarrior})
			p := s.Players["p1"]
			require.Equal(t, Position{X: 10, Y: 10}, p.Position)

			_, res := Apply(s, Intent{Type: IntentMoveTo, PlayerID: "p1", TargetPosition: &tc.target})
			require.True(t, res.Accepted)

			Step(s, 1000) // deltaTime = 1s

			assert.Equal(t, tc.wantPos, p.Position)
			assert.Equal(t, tc.wantVelocity, p.Velocity)
			if tc.wantArrived {
				assert.Nil(t, p.TargetPosition)
			} else {
				require.NotNil(t, p.TargetPosition)
				assert.Equal(t, tc.target, *p.TargetPosition)
			}
		})
	}
}

func TestStep_DistanceDecreasesUntilArrival(t *testing.T) {
	s := newStateWith(t, PlayerSpec{ID: "p1", Name: "Ana", Class: ClassRanger})
	p := s.Players["p1"]
	target := Position{X: 31.7, Y: -4.2}
	_, res := Apply(s, Intent{Type: IntentMoveTo, PlayerID: "p1", TargetPosition: &target})
	require.True(t, res.Accepted)

	prev := Distance(p.Position, target)
	now := int64(0)
	for i := 0; p.TargetPosition != nil; i++ {
		require.Less(t, i, 1000, "never arrived")
		now += 33
		Step(s, now)
		d := Distance(p.Position, target)
		if p.TargetPosition != nil {
			require.Less(t, d, prev)
		}
		prev = d
	}

	assert.LessOrEqual(t, Distance(p.Position, target), ArrivalEpsilon)
	assert.Equal(t, Vec{}, p.Velocity)

	// Arrival is idempotent.
	settled := p.Position
	for i := 0; i < 5; i++ {
		now += 33
		Step(s, now)
	}
	assert.Equal(t, settled, p.Position)
	assert.Equal(t, Vec{}, p.Velocity)
}

func TestStep_WithinEpsilonArrivesWithoutMoving(t *testing.T) {
	s := newStateWith(t, PlayerSpec{ID: "p1", Name: "Ana", Class: ClassMage})
	p := s.Players["p1"]
	p.TargetPosition = &Position{X: 10.05, Y: 10}
	p.Velocity = Vec{X: 5}

	Step(s, 33)

	assert.Nil(t, p.TargetPosition)
	assert.Equal(t, Vec{}, p.Velocity)
	assert.Equal(t, Position{X: 10, Y: 10}, p.Position)
}

func TestStep_EmptySessionBumpsTimestamp(t *testing.T) {
	s := NewEmptyState(500)
	u := Step(s, 800)
	assert.Equal(t, int64(800), s.LastUpdate)
	assert.Empty(t, u.Players)
	assert.Empty(t, u.Enemies)
}

func TestStep_ClearsStaleTarget(t *testing.T) {
	s := newStateWith(t,
		PlayerSpec{ID: "p1", Name: "Ana", Class: ClassCleric},
		PlayerSpec{ID: "p2", Name: "Bo", Class: ClassWarrior},
	)
	_, res := Apply(s, Intent{Type: IntentSetTarget, PlayerID: "p1", TargetID: strPtr("p2"), TargetType: TargetPlayer})
	require.True(t, res.Accepted)
	require.True(t, s.Remove("p2"))

	u := Step(s, 33)

	require.Len(t, u.Players, 1)
	assert.Empty(t, u.Players[0].TargetID)
	assert.Empty(t, s.Players["p1"].TargetID)
}

func TestStep_RunsEnemyPolicy(t *testing.T) {
	s := NewEmptyState(0)
	s.AddEnemy(Enemy{ID: "rat-1", Type: "rat", Name: "Rat", Health: 10, Position: Position{X: 1, Y: 1}})
	var calls int
	s.Rules.EnemyPolicy = func(_ *State, e *Enemy, dt float64) {
		calls++
		e.Position.X += dt
	}

	u := Step(s, 2000)

	assert.Equal(t, 1, calls)
	require.Len(t, u.Enemies, 1)
	assert.Equal(t, 3.0, u.Enemies[0].Position.X)
	assert.Equal(t, 10, u.Enemies[0].MaxHealth)
}

func TestApply_MoveClearsTarget(t *testing.T) {
	s := newStateWith(t, PlayerSpec{ID: "p1", Name: "Ana", Class: ClassRanger})
	s.AddEnemy(Enemy{ID: "e1", Health: 5, Position: Position{X: 12, Y: 12}})
	_, res := Apply(s, Intent{Type: IntentSetTarget, PlayerID: "p1", TargetID: strPtr("e1"), TargetType: TargetEnemy})
	require.True(t, res.Accepted)

	_, res = Apply(s, Intent{Type: IntentMoveTo, PlayerID: "p1", TargetPosition: &Position{X: 1, Y: 1}})
	require.True(t, res.Accepted)

	p := s.Players["p1"]
	assert.Empty(t, p.TargetID)
	assert.Equal(t, &Position{X: 1, Y: 1}, p.TargetPosition)
}

func TestApply_SetTarget(t *testing.T) {
	cases := []struct {
		name       string
		targetID   *string
		targetType TargetType
		wantErr    error
		wantTarget string
	}{
		{name: "existing enemy", targetID: strPtr("e1"), targetType: TargetEnemy, wantTarget: "e1"},
		{name: "existing player", targetID: strPtr("p2"), targetType: TargetPlayer, wantTarget: "p2"},
		{name: "null clears", targetID: nil, wantTarget: ""},
		{name: "missing enemy rejected", targetID: strPtr("ghost"), targetType: TargetEnemy, wantErr: ErrTargetNotFound, wantTarget: "p2"},
		{name: "player id looked up as enemy rejected", targetID: strPtr("p2"), targetType: TargetEnemy, wantErr: ErrTargetNotFound, wantTarget: "p2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStateWith(t,
				PlayerSpec{ID: "p1", Name: "Ana", Class: ClassCleric},
				PlayerSpec{ID: "p2", Name: "Bo", Class: ClassWarrior},
			)
			s.AddEnemy(Enemy{ID: "e1", Health: 5})
			s.Players["p1"].TargetID = "p2"
			s.Players["p1"].TargetType = TargetPlayer

			_, res := Apply(s, Intent{Type: IntentSetTarget, PlayerID: "p1", TargetID: tc.targetID, TargetType: tc.targetType})
			if tc.wantErr != nil {
				require.False(t, res.Accepted)
				require.ErrorIs(t, res.Err(), tc.wantErr)
			} else {
				require.True(t, res.Accepted)
				require.NoError(t, res.Err())
			}
			assert.Equal(t, tc.wantTarget, s.Players["p1"].TargetID)
		})
	}
}

func TestApply_UseAbilityCooldownBoundary(t *testing.T) {
	s := newStateWith(t, PlayerSpec{ID: "w", Name: "Ana", Class: ClassWarrior})
	use := func(at int64) ([]Event, IntentResult) {
		return Apply(s, Intent{Type: IntentUseAbility, PlayerID: "w", AbilityID: "shield-bash", Timestamp: at})
	}

	events, res := use(0)
	require.True(t, res.Accepted)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Type: EvtAbilityUsed, PlayerID: "w", AbilityID: "shield-bash"}, events[0])
	assert.Equal(t, int64(3000), s.Players["w"].AbilityCooldowns["shield-bash"])

	events, res = use(2000)
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err(), ErrCooldownActive)
	assert.Empty(t, events)
	assert.Equal(t, int64(3000), s.Players["w"].AbilityCooldowns["shield-bash"])

	events, res = use(3000)
	require.True(t, res.Accepted)
	assert.Len(t, events, 1)
	assert.Equal(t, int64(6000), s.Players["w"].AbilityCooldowns["shield-bash"])
}

func TestApply_UseAbilityRange(t *testing.T) {
	cases := []struct {
		name     string
		enemyPos Position
		wantErr  error
	}{
		{name: "ten tiles away is out of range", enemyPos: Position{X: 20, Y: 10}, wantErr: ErrOutOfRange},
		{name: "exactly at range is accepted", enemyPos: Position{X: 18, Y: 10}},
		{name: "different floor is out of range", enemyPos: Position{Floor: 1, X: 11, Y: 10}, wantErr: ErrOutOfRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStateWith(t, PlayerSpec{ID: "r", Name: "Ana", Class: ClassRanger})
			s.AddEnemy(Enemy{ID: "e1", Health: 40, Position: tc.enemyPos})
			_, res := Apply(s, Intent{Type: IntentSetTarget, PlayerID: "r", TargetID: strPtr("e1"), TargetType: TargetEnemy})
			require.True(t, res.Accepted)

			events, res := Apply(s, Intent{
				Type: IntentUseAbility, PlayerID: "r", AbilityID: "aimed-shot",
				TargetID: strPtr("e1"), TargetType: TargetEnemy, Timestamp: 100,
			})
			if tc.wantErr != nil {
				require.ErrorIs(t, res.Err(), tc.wantErr)
				assert.Empty(t, events)
				assert.NotContains(t, s.Players["r"].AbilityCooldowns, "aimed-shot")
				return
			}
			require.True(t, res.Accepted)
			require.Len(t, events, 1)
			assert.Equal(t, "e1", events[0].TargetID)
			assert.Equal(t, int64(2100), s.Players["r"].AbilityCooldowns["aimed-shot"])
		})
	}
}

func TestApply_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		in      Intent
		wantErr error
	}{
		{name: "unknown player", in: Intent{Type: IntentStopMoving, PlayerID: "nobody"}, wantErr: ErrPlayerNotFound},
		{name: "ability of another class", in: Intent{Type: IntentUseAbility, PlayerID: "p1", AbilityID: "fireball"}, wantErr: ErrUnknownAbility},
		{name: "missing ability target", in: Intent{Type: IntentUseAbility, PlayerID: "p1", AbilityID: "shield-bash", TargetID: strPtr("ghost")}, wantErr: ErrTargetNotFound},
		{name: "unknown intent type", in: Intent{Type: "DANCE", PlayerID: "p1"}, wantErr: ErrUnsupportedCommand},
		{name: "move without position", in: Intent{Type: IntentMoveTo, PlayerID: "p1"}, wantErr: ErrUnsupportedCommand},
		{name: "move to another floor", in: Intent{Type: IntentMoveTo, PlayerID: "p1", TargetPosition: &Position{Floor: 1, X: 12, Y: 10}}, wantErr: ErrOtherFloor},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStateWith(t, PlayerSpec{ID: "p1", Name: "Ana", Class: ClassWarrior})
			before := s.Snapshot()

			events, res := Apply(s, tc.in)

			assert.False(t, res.Accepted)
			assert.True(t, errors.Is(res.Err(), tc.wantErr), "got %v", res.Err())
			assert.Empty(t, events)
			assert.Equal(t, before, s.Snapshot())
		})
	}
}

func TestApply_StopMoving(t *testing.T) {
	s := newStateWith(t, PlayerSpec{ID: "p1", Name: "Ana", Class: ClassWarrior})
	_, _ = Apply(s, Intent{Type: IntentMoveTo, PlayerID: "p1", TargetPosition: &Position{X: 50, Y: 50}})
	Step(s, 100)
	require.NotEqual(t, Vec{}, s.Players["p1"].Velocity)

	_, res := Apply(s, Intent{Type: IntentStopMoving, PlayerID: "p1"})
	require.True(t, res.Accepted)
	assert.Nil(t, s.Players["p1"].TargetPosition)
	assert.Equal(t, Vec{}, s.Players["p1"].Velocity)
}

func TestJoin_SpawnsAreDistinct(t *testing.T) {
	s := NewEmptyState(0)
	first, _ := s.Join(PlayerSpec{ID: "a", Name: "A", Class: ClassWarrior}, 0)
	second, _ := s.Join(PlayerSpec{ID: "b", Name: "B", Class: ClassMage}, 0)
	assert.Equal(t, Position{X: 10, Y: 10}, first.Position)
	assert.Equal(t, Position{X: 12, Y: 12}, second.Position)

	// Leaving does not recycle a spawn point.
	s.Remove("a")
	third, _ := s.Join(PlayerSpec{ID: "c", Name: "C", Class: ClassCleric}, 0)
	assert.Equal(t, Position{X: 14, Y: 14}, third.Position)

	seen := map[Position]bool{}
	for _, p := range s.Players {
		assert.False(t, seen[p.Position], "duplicate spawn %+v", p.Position)
		seen[p.Position] = true
	}
}

func TestJoin_DoesNotOverwriteExistingPlayer(t *testing.T) {
	s := newStateWith(t, PlayerSpec{ID: "a", Name: "A", Class: ClassWarrior})
	s.Players["a"].Health = 7

	p, created := s.Join(PlayerSpec{ID: "a", Name: "Impostor", Class: ClassMage}, 99)

	assert.False(t, created)
	assert.Equal(t, "A", p.Name)
	assert.Equal(t, 7, p.Health)
	assert.Equal(t, 1, s.Spawns)
}

func TestJoin_ClassDefaults(t *testing.T) {
	for class, def := range ClassCatalog {
		t.Run(string(class), func(t *testing.T) {
			s := NewEmptyState(0)
			p, _ := s.Join(PlayerSpec{ID: "x", Name: "X", Class: class}, 42)
			assert.Equal(t, def.BaseHealth, p.Health)
			assert.Equal(t, def.BaseHealth, p.MaxHealth)
			assert.Equal(t, DefaultMoveSpeed, p.MoveSpeed)
			assert.Equal(t, def.Abilities, p.Abilities)
			assert.Equal(t, int64(42), p.JoinedAt)
		})
	}
}

func TestDirectEffects(t *testing.T) {
	s := newStateWith(t,
		PlayerSpec{ID: "c", Name: "Cleric", Class: ClassCleric},
		PlayerSpec{ID: "w", Name: "Warrior", Class: ClassWarrior},
	)
	s.Rules.Effects = DirectEffects{}
	s.AddEnemy(Enemy{ID: "e1", Health: 10, Position: Position{X: 11, Y: 11}})
	s.Players["w"].Health = 140

	_, res := Apply(s, Intent{Type: IntentUseAbility, PlayerID: "c", AbilityID: "heal", TargetID: strPtr("w"), TargetType: TargetPlayer})
	require.True(t, res.Accepted)
	assert.Equal(t, 150, s.Players["w"].Health, "heal is clamped to max health")

	_, res = Apply(s, Intent{Type: IntentUseAbility, PlayerID: "c", AbilityID: "smite", TargetID: strPtr("e1"), TargetType: TargetEnemy})
	require.True(t, res.Accepted)
	assert.Equal(t, 0, s.Enemies["e1"].Health, "damage is clamped at zero")
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newStateWith(t, PlayerSpec{ID: "p1", Name: "Ana", Class: ClassWarrior})
	_, _ = Apply(s, Intent{Type: IntentUseAbility, PlayerID: "p1", AbilityID: "taunt", Timestamp: 10})

	snap := s.Snapshot()
	snap.Players[0].AbilityCooldowns["taunt"] = 0
	snap.Players[0].Position.X = 99

	assert.Equal(t, int64(8010), s.Players["p1"].AbilityCooldowns["taunt"])
	assert.Equal(t, 10.0, s.Players["p1"].Position.X)
}
