package engine

type Class string

const (
	ClassWarrior Class = "warrior"
	ClassRanger  Class = "ranger"
	ClassMage    Class = "mage"
	ClassCleric  Class = "cleric"
)

type AbilityTarget string

const (
	AbilityTargetEnemy  AbilityTarget = "enemy"
	AbilityTargetAlly   AbilityTarget = "ally"
	AbilityTargetSelf   AbilityTarget = "self"
	AbilityTargetGround AbilityTarget = "ground"
)

// Ability is static class data. Cooldown state lives on the Player.
type Ability struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	CooldownMs int64         `json:"cooldownTime"`
	Range      float64       `json:"range"`
	Magnitude  int           `json:"damageOrHeal,omitempty"`
	TargetType AbilityTarget `json:"targetType"`
	AoERadius  float64       `json:"aoeRadius,omitempty"`
}

type ClassDef struct {
	Class      Class
	BaseHealth int
	Abilities  []Ability
}

var ClassCatalog = map[Class]ClassDef{
	ClassWarrior: {
		Class:      ClassWarrior,
		BaseHealth: 150,
		Abilities: []Ability{
			{ID: "shield-bash", Name: "Shield Bash", CooldownMs: 3000, Range: 1.5, Magnitude: 15, TargetType: AbilityTargetEnemy},
			{ID: "taunt", Name: "Taunt", CooldownMs: 8000, Range: 5, TargetType: AbilityTargetEnemy, AoERadius: 3},
			{ID: "second-wind", Name: "Second Wind", CooldownMs: 20000, Magnitude: 30, TargetType: AbilityTargetSelf},
		},
	},
	ClassRanger: {
		Class:      ClassRanger,
		BaseHealth: 100,
		Abilities: []Ability{
			{ID: "aimed-shot", Name: "Aimed Shot", CooldownMs: 2000, Range: 8, Magnitude: 20, TargetType: AbilityTargetEnemy},
			{ID: "volley", Name: "Volley", CooldownMs: 6000, Range: 8, Magnitude: 12, TargetType: AbilityTargetGround, AoERadius: 2},
			{ID: "evade", Name: "Evade", CooldownMs: 10000, TargetType: AbilityTargetSelf},
		},
	},
	ClassMage: {
		Class:      ClassMage,
		BaseHealth: 80,
		Abilities: []Ability{
			{ID: "fireball", Name: "Fireball", CooldownMs: 4000, Range: 6, Magnitude: 30, TargetType: AbilityTargetEnemy, AoERadius: 2},
			{ID: "frost-nova", Name: "Frost Nova", CooldownMs: 9000, TargetType: AbilityTargetSelf, AoERadius: 3},
			{ID: "blink", Name: "Blink", CooldownMs: 12000, Range: 5, TargetType: AbilityTargetGround},
		},
	},
	ClassCleric: {
		Class:      ClassCleric,
		BaseHealth: 110,
		Abilities: []Ability{
			{ID: "heal", Name: "Heal", CooldownMs: 2500, Range: 5, Magnitude: 25, TargetType: AbilityTargetAlly},
			{ID: "smite", Name: "Smite", CooldownMs: 3000, Range: 4, Magnitude: 12, TargetType: AbilityTargetEnemy},
			{ID: "sanctuary", Name: "Sanctuary", CooldownMs: 15000, Magnitude: 20, TargetType: AbilityTargetSelf, AoERadius: 4},
		},
	},
}

func ParseClass(s string) (Class, bool) {
	c := Class(s)
	_, ok := ClassCatalog[c]
	return c, ok
}
