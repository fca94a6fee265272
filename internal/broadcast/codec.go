package broadcast

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

type Codec int

const (
	CodecJSON Codec = iota
	CodecMsgPack
)

func ParseCodec(s string) (Codec, bool) {
	switch s {
	case "", "json":
		return CodecJSON, true
	case "msgpack":
		return CodecMsgPack, true
	default:
		return CodecJSON, false
	}
}

// Frame is one encoded message. Binary frames carry MessagePack.
type Frame struct {
	Binary bool
	Data   []byte
}

func Encode(c Codec, event string, payload any) (Frame, error) {
	env := types.Envelope{Event: event, Data: payload}
	switch c {
	case CodecMsgPack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		// Same field names on both codecs.
		enc.SetCustomStructTag("json")
		if err := enc.Encode(env); err != nil {
			return Frame{}, err
		}
		return Frame{Binary: true, Data: buf.Bytes()}, nil
	default:
		b, err := json.Marshal(env)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Data: b}, nil
	}
}
