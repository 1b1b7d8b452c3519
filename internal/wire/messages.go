package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/invopop/jsonschema"
	"golang.org/x/exp/slices"
)

// Message tags and channel names. A broadcast's tag doubles as the channel
// a client must be subscribed to in order to receive it.
const (
	TypePositions = "positions"
	TypePresence  = "presence"

	// TickPositions is the bare control string the Hub sends to request a flush.
	TickPositions = "tickPositions"

	ChannelPositions = TypePositions
	ChannelPresence  = TypePresence
)

// Channels lists every subscription name a client may request.
var Channels = []string{ChannelPositions, ChannelPresence}

var (
	// ErrInvalidMotion is returned when a client frame is not a well-formed
	// [[x,y,z],[yaw,pitch],[vx,vy,vz]] triple.
	ErrInvalidMotion = errors.New("invalid motion payload")

	// ErrUnknownMessage is returned for frames whose tag is not recognized.
	ErrUnknownMessage = errors.New("unknown message")
)

// ValidChannel reports whether name is a known subscription channel.
func ValidChannel(name string) bool {
	return slices.Contains(Channels, name)
}

// Motion is the client triple: position (3), orientation (yaw, pitch) and
// velocity (3).
type Motion [3][]float64

var motionArity = [3]int{3, 2, 3}

// ParseMotion decodes and validates a client frame.
func ParseMotion(data []byte) (Motion, error) {
	var m Motion
	if err := json.Unmarshal(data, &m); err != nil {
		return Motion{}, err
	}
	return m, nil
}

// UnmarshalJSON enforces the exact triple shape; encoding/json would
// otherwise silently zero-fill or truncate fixed-size arrays.
func (m *Motion) UnmarshalJSON(data []byte) error {
	var raw [][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMotion, err)
	}
	if len(raw) != len(motionArity) {
		return fmt.Errorf("%w: want %d components, got %d", ErrInvalidMotion, len(motionArity), len(raw))
	}
	var out Motion
	for i, part := range raw {
		if len(part) != motionArity[i] {
			return fmt.Errorf("%w: component %d has %d values, want %d", ErrInvalidMotion, i, len(part), motionArity[i])
		}
		for _, v := range part {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value", ErrInvalidMotion)
			}
		}
		out[i] = part
	}
	*m = out
	return nil
}

// Valid reports whether m has the triple shape. Zero-value motions are invalid.
func (m Motion) Valid() bool {
	for i, part := range m {
		if len(part) != motionArity[i] {
			return false
		}
	}
	return true
}

// PositionSample is one user's latest motion, stamped in Unix milliseconds.
type PositionSample struct {
	User      string `json:"u" jsonschema:"description=Authenticated user address"`
	Timestamp int64  `json:"t" jsonschema:"description=Unix milliseconds when the shard accepted the sample"`
	Motion    Motion `json:"d" jsonschema:"description=[[x,y,z],[yaw,pitch],[vx,vy,vz]]"`
}

// PositionsMessage is the positions batch exchanged Shard->Hub, Hub->Shard
// and Shard->Client.
type PositionsMessage struct {
	Type string           `json:"t" jsonschema:"enum=positions"`
	Data []PositionSample `json:"d"`
}

// PresenceMessage carries a full list of authenticated addresses.
type PresenceMessage struct {
	Type string   `json:"t" jsonschema:"enum=presence"`
	Data []string `json:"d"`
}

type envelope struct {
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// Kind classifies a decoded frame.
type Kind int

const (
	KindTick Kind = iota + 1
	KindPositions
	KindPresence
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return TickPositions
	case KindPositions:
		return TypePositions
	case KindPresence:
		return TypePresence
	default:
		return "unknown"
	}
}

// Message is a decoded Hub or Shard frame.
type Message struct {
	Kind      Kind
	Positions []PositionSample
	Presence  []string
}

// Tag returns the channel a broadcast of this kind is delivered on.
func (m Message) Tag() string {
	switch m.Kind {
	case KindPositions:
		return ChannelPositions
	case KindPresence:
		return ChannelPresence
	default:
		return ""
	}
}

var tickFrame = []byte(`"` + TickPositions + `"`)

// EncodeTick returns the tickPositions control frame.
func EncodeTick() []byte {
	return append([]byte(nil), tickFrame...)
}

// EncodePositions encodes a positions batch. A nil batch encodes as an empty list.
func EncodePositions(samples []PositionSample) ([]byte, error) {
	if samples == nil {
		samples = []PositionSample{}
	}
	return json.Marshal(PositionsMessage{Type: TypePositions, Data: samples})
}

// EncodePresence encodes a presence list. A nil list encodes as an empty list.
func EncodePresence(addrs []string) ([]byte, error) {
	if addrs == nil {
		addrs = []string{}
	}
	return json.Marshal(PresenceMessage{Type: TypePresence, Data: addrs})
}

// Decode parses a Hub or Shard frame. Position entries with an empty user or
// a malformed motion are dropped individually rather than failing the batch.
func Decode(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Message{}, ErrUnknownMessage
	}

	if trimmed[0] == '"' {
		var tag string
		if err := json.Unmarshal(trimmed, &tag); err != nil {
			return Message{}, fmt.Errorf("decode control frame: %w", err)
		}
		if tag != TickPositions {
			return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
		}
		return Message{Kind: KindTick}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypePositions:
		var raw []json.RawMessage
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return Message{}, fmt.Errorf("decode positions: %w", err)
		}
		samples := make([]PositionSample, 0, len(raw))
		for _, item := range raw {
			var s PositionSample
			if err := json.Unmarshal(item, &s); err != nil || s.User == "" || !s.Motion.Valid() {
				continue
			}
			samples = append(samples, s)
		}
		return Message{Kind: KindPositions, Positions: samples}, nil
	case TypePresence:
		var addrs []string
		if err := json.Unmarshal(env.Data, &addrs); err != nil {
			return Message{}, fmt.Errorf("decode presence: %w", err)
		}
		return Message{Kind: KindPresence, Presence: addrs}, nil
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

// Schemas returns JSON Schemas for the frames clients send and receive.
func Schemas() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"client":    jsonschema.Reflect(Motion{}),
		"positions": jsonschema.Reflect(&PositionsMessage{}),
		"presence":  jsonschema.Reflect(&PresenceMessage{}),
	}
}
