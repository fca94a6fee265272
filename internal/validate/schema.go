package validate

import (
	"github.com/invopop/jsonschema"

	itypes "github.com/DoyleJ11/dungeon-realtime-backend/internal/types"
)

// Schemas reflects the JSON Schema of every inbound payload, keyed by the
// name clients see in docs.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	build := func(v any, title string) *jsonschema.Schema {
		s := reflector.Reflect(v)
		s.Title = title
		return s
	}
	return map[string]*jsonschema.Schema{
		"ClientMessage":        build(&itypes.ClientMessage{}, "Socket intent envelope"),
		"MOVE_TO":              build(&itypes.MoveToPayload{}, "MOVE_TO payload"),
		"SET_TARGET":           build(&itypes.SetTargetPayload{}, "SET_TARGET payload"),
		"USE_ABILITY":          build(&itypes.UseAbilityPayload{}, "USE_ABILITY payload"),
		"CreateSessionRequest": build(&itypes.CreateSessionRequest{}, "Create session request"),
		"JoinSessionRequest":   build(&itypes.JoinSessionRequest{}, "Join session request"),
		"LeaveSessionRequest":  build(&itypes.LeaveSessionRequest{}, "Leave session request"),
		"SpawnEnemyRequest":    build(&itypes.SpawnEnemyRequest{}, "Spawn enemy request"),
	}
}
