// Package messages is the {"command", "value"} envelope shared by the event channel and the
// websocket api.
package messages

import (
	"encoding/json"
	"fmt"

	"github.com/Lavizord/roulette-server/internal/models"
)

type Message[T any] struct {
	Command string `json:"command"`
	Value   T      `json:"value,omitempty"`
}

// Subscription narrows a websocket client to one round. RoundID 0 means every round.
type Subscription struct {
	RoundID uint64 `json:"round_id"`
}

type GenericMessage struct {
	MessageType string `json:"message_type"`
	Message     string `json:"message"`
}

func EncodeMessage[T any](command string, value T) ([]byte, error) {
	msg := Message[T]{Command: command, Value: value}
	return json.Marshal(msg)
}

func DecodeRawMessage(data []byte) (*Message[json.RawMessage], error) {
	var msg Message[json.RawMessage]
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("[Message Parser - DecodeRawMessage] invalid message format: %w", err)
	}
	return &msg, nil
}

func DecodeTypedMessage[T any](data []byte) (*Message[T], error) {
	var msg Message[T]
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("[Message Parser - DecodeTypedMessage] invalid message format: %w", err)
	}
	return &msg, nil
}

// NewMessage encodes a known command. The value is always present in the output.
func NewMessage[T any](command string, value T) ([]byte, error) {
	if _, ok := validCommands[command]; !ok {
		return nil, fmt.Errorf("[Message Parser - New Message] invalid command: %s", command)
	}
	message := map[string]interface{}{
		"command": command,
		"value":   value,
	}
	return json.Marshal(message)
}

func GenerateGenericMessage(msgtype string, msg string) ([]byte, error) {
	return NewMessage("message", GenericMessage{MessageType: msgtype, Message: msg})
}

// GenerateEventMessage wraps an engine event, the command is the event kind.
func GenerateEventMessage(ev models.Event) ([]byte, error) {
	return NewMessage(string(ev.Kind), ev)
}

// DecodeEvent reverses GenerateEventMessage.
func DecodeEvent(data []byte) (models.Event, error) {
	msg, err := DecodeTypedMessage[models.Event](data)
	if err != nil {
		return models.Event{}, err
	}
	if t, ok := CommandTypeOf(msg.Command); !ok || t != BroadcastCommand {
		return models.Event{}, fmt.Errorf("[Message Parser] not an event: %s", msg.Command)
	}
	msg.Value.Kind = models.EventKind(msg.Command)
	return msg.Value, nil
}

// ParseMessage validates a message sent by a client.
func ParseMessage(msgBytes []byte) (*Message[json.RawMessage], error) {
	msg, err := DecodeRawMessage(msgBytes)
	if err != nil {
		return nil, err
	}
	info, ok := validCommands[msg.Command]
	if !ok {
		return nil, fmt.Errorf("[Message Parser] invalid command: %s", msg.Command)
	}
	if info.Type != ClientCommand {
		return nil, fmt.Errorf("[Message Parser] %s is not a client command", msg.Command)
	}

	switch msg.Command {
	case "subscribe":
		var value Subscription
		if err := json.Unmarshal(msg.Value, &value); err != nil {
			return nil, fmt.Errorf("[Message Parser] invalid value format for %s: %w", msg.Command, err)
		}
	}
	return msg, nil
}
