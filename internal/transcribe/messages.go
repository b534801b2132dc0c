package transcribe

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Wire frames for the streaming ASR backend. The protocol is msgpack maps
// over a websocket: the client streams Audio frames and a final Marker,
// the server answers with Word frames and echoes the Marker when every
// word before it has been delivered.

// streamMessage is the interface for decoded server frames.
type streamMessage interface {
	messageType() string
}

// audioFrame carries PCM samples to the server.
type audioFrame struct {
	Type string    `msgpack:"type"`
	PCM  []float32 `msgpack:"pcm"`
}

func (m *audioFrame) messageType() string { return m.Type }

// wordFrame carries one transcribed word from the server.
type wordFrame struct {
	Type string `msgpack:"type"`
	Text string `msgpack:"text"`
}

func (m *wordFrame) messageType() string { return m.Type }

// markerFrame is the end-of-stream sync token.
type markerFrame struct {
	Type string `msgpack:"type"`
	ID   int64  `msgpack:"id"`
}

func (m *markerFrame) messageType() string { return m.Type }

// readyFrame announces the server will accept audio.
type readyFrame struct {
	Type string `msgpack:"type"`
}

func (m *readyFrame) messageType() string { return m.Type }

// errorFrame carries a server-side failure.
type errorFrame struct {
	Type    string `msgpack:"type"`
	Message string `msgpack:"message"`
}

func (m *errorFrame) messageType() string { return m.Type }

// unknownFrame preserves frames this client does not understand.
type unknownFrame struct {
	Type string
}

func (m *unknownFrame) messageType() string { return m.Type }

func encodeAudioFrame(pcm []float32) ([]byte, error) {
	return msgpack.Marshal(&audioFrame{Type: "Audio", PCM: pcm})
}

func encodeMarkerFrame(id int64) ([]byte, error) {
	return msgpack.Marshal(&markerFrame{Type: "Marker", ID: id})
}

// decodeStreamMessage decodes a server frame by its type tag.
func decodeStreamMessage(data []byte) (streamMessage, error) {
	var raw map[string]interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	msgType, _ := raw["type"].(string)
	switch msgType {
	case "Word":
		text, _ := raw["text"].(string)
		return &wordFrame{Type: msgType, Text: text}, nil
	case "Marker":
		id, _ := raw["id"].(int64)
		return &markerFrame{Type: msgType, ID: id}, nil
	case "Ready":
		return &readyFrame{Type: msgType}, nil
	case "Error":
		message, _ := raw["message"].(string)
		return &errorFrame{Type: msgType, Message: message}, nil
	default:
		return &unknownFrame{Type: msgType}, nil
	}
}
