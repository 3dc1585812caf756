package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/events"
)

// EventMessage is a bus event as it travels between instances. Payload is
// kept raw; receivers only need the name and the origin.
type EventMessage struct {
	ID         string          `json:"id"`
	Name       events.Name     `json:"name"`
	Origin     string          `json:"origin"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewEventMessage wraps a local event for publication.
func NewEventMessage(evt events.Event, origin string) (*EventMessage, error) {
	msg := &EventMessage{
		ID:         evt.ID,
		Name:       evt.Name,
		Origin:     origin,
		OccurredAt: evt.OccurredAt,
	}
	if evt.Payload != nil {
		b, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		msg.Payload = b
	}
	return msg, nil
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON decodes a message and rejects ones without a name or origin.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Name == "" || msg.Origin == "" {
		return nil, errors.New("message without name or origin")
	}
	return &msg, nil
}
