package events

import (
	"encoding/json"
	"fmt"

	"github.com/immxrtalbeast/filap/internal/domain"
)

// Envelope is the wire shape of every stream frame.
type Envelope struct {
	Event domain.EventType `json:"event"`
	Data  any              `json:"data"`
}

// Encode renders an event once so every subscriber gets the same bytes.
func Encode(ev domain.Event) ([]byte, error) {
	frame, err := json.Marshal(Envelope{Event: ev.Type, Data: ev.Data})
	if err != nil {
		return nil, fmt.Errorf("events.encode %s: %w", ev.Type, err)
	}
	return frame, nil
}
