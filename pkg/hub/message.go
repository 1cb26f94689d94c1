package hub

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"
)

// Kind is the websocket frame type a message is written as.
type Kind uint8

const (
	Text   Kind = iota // JSON track results and log entries
	Binary             // JPEG overlay frames
)

// Message is one payload fanned out to clients. Data is shared between
// clients and must not be modified after broadcast.
type Message struct {
	Kind Kind
	Data []byte
}

// JSON encodes v into a text message.
func JSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: Text, Data: data}, nil
}

// Frame wraps an encoded image.
func Frame(jpeg []byte) Message {
	return Message{Kind: Binary, Data: jpeg}
}

func (m Message) wsType() int {
	if m.Kind == Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
