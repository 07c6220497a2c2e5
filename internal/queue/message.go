package queue

import (
	"encoding/json"
	"fmt"
)

// MessageVersion is the envelope schema version written by this service.
const MessageVersion = 1

// Message is the envelope sent to downstream queue consumers. Payload carries
// the event body for the given Type.
type Message struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	GroupKey   string          `json:"groupKey,omitempty"`
	OccurredAt string          `json:"occurredAt"`
	Version    int             `json:"version"`
	Payload    json.RawMessage `json:"payload"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, fmt.Errorf("message type is required")
	}
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Version > MessageVersion {
		return Message{}, fmt.Errorf("unsupported message version %d", msg.Version)
	}
	return msg, nil
}
