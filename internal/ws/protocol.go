package ws

import (
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/cursorshare/backend/internal/presence"
)

// Envelope is the shape of every text frame in both directions.
type Envelope struct {
	Event presence.EventName `json:"event"`
	Data  any                `json:"data"`
}

type inboundEnvelope struct {
	Event presence.EventName `json:"event"`
	Data  json.RawMessage    `json:"data"`
}

func encodeFrame(event presence.EventName, payload any) ([]byte, error) {
	return sonic.Marshal(Envelope{Event: event, Data: payload})
}

func decodeFrame(frame []byte) (inboundEnvelope, error) {
	var env inboundEnvelope
	err := sonic.Unmarshal(frame, &env)
	return env, err
}
