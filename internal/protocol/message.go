// Package protocol defines the JSON envelope exchanged over the board
// websocket. Every frame is one object whose MESSAGE_TYPE field selects the
// operation.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"LiveBoard/internal/shape"
)

// Type is the MESSAGE_TYPE discriminant.
type Type string

// Inbound (client -> server).
const (
	TypeJoinRoom    Type = "join_room"
	TypeLeaveRoom   Type = "leave_room"
	TypeShape       Type = "shape"
	TypeUpdateShape Type = "update_shape"
	TypeErase       Type = "erase"
	TypeClearAll    Type = "clear_all"
)

// Outbound only. shape, erase and clear_all are reused in both directions.
const (
	TypeShapeUpdated Type = "shape_updated"
	TypeError        Type = "error"
)

// ErrMalformed is returned for frames that are not a valid envelope.
var ErrMalformed = errors.New("malformed message")

// Message is the envelope. Shape is kept raw so the router can hand it to
// the shape validator and report exactly which field failed.
type Message struct {
	Type          Type            `json:"MESSAGE_TYPE"`
	RoomID        int64           `json:"roomId,omitempty"`
	Shape         json.RawMessage `json:"shape,omitempty"`
	ShapeIDs      []int64         `json:"shapeIds,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Parse decodes one frame and checks the fields its type needs.
func Parse(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch m.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeClearAll:
	case TypeShape, TypeUpdateShape, TypeShapeUpdated:
		if len(m.Shape) == 0 {
			return Message{}, fmt.Errorf("%w: %s without shape", ErrMalformed, m.Type)
		}
	case TypeErase, TypeError:
	case "":
		return Message{}, fmt.Errorf("%w: missing MESSAGE_TYPE", ErrMalformed)
	default:
		return Message{}, fmt.Errorf("%w: unknown MESSAGE_TYPE %q", ErrMalformed, m.Type)
	}
	if m.RoomID == 0 && m.Type != TypeError {
		return Message{}, fmt.Errorf("%w: %s without roomId", ErrMalformed, m.Type)
	}
	return m, nil
}

// DecodeShape validates the embedded shape. A correlation id carried inside
// the shape as _tempId fills in for a missing message-level one.
func (m Message) DecodeShape() (shape.Shape, error) {
	s, err := shape.Decode(m.Shape)
	if err != nil {
		return shape.Shape{}, err
	}
	if m.CorrelationID != "" {
		s.CorrelationID = m.CorrelationID
	}
	return s, nil
}

// Correlation returns the effective correlation id of a shape message.
func (m Message) Correlation() string {
	if m.CorrelationID != "" {
		return m.CorrelationID
	}
	var probe struct {
		TempID string `json:"_tempId"`
	}
	_ = json.Unmarshal(m.Shape, &probe)
	return probe.TempID
}

// Encode marshals m; it only fails if a shape payload is itself invalid JSON.
func (m Message) Encode() ([]byte, error) { return json.Marshal(m) }

func withShape(t Type, room int64, s shape.Shape, corr string) (Message, error) {
	raw, err := shape.Encode(s)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, RoomID: room, Shape: raw, CorrelationID: corr}, nil
}

// Join and Leave address room membership.
func Join(room int64) Message  { return Message{Type: TypeJoinRoom, RoomID: room} }
func Leave(room int64) Message { return Message{Type: TypeLeaveRoom, RoomID: room} }

// CreateShape asks the server to store s; the echo carries corr back.
func CreateShape(room int64, s shape.Shape, corr string) (Message, error) {
	return withShape(TypeShape, room, s, corr)
}

// UpdateShape asks the server to persist new geometry for a stored shape.
func UpdateShape(room int64, s shape.Shape) (Message, error) {
	return withShape(TypeUpdateShape, room, s, "")
}

// ShapeCreated is the broadcast of a freshly stored shape.
func ShapeCreated(room int64, s shape.Shape, corr string) (Message, error) {
	return withShape(TypeShape, room, s, corr)
}

// ShapeUpdated is the broadcast of a persisted update.
func ShapeUpdated(room int64, s shape.Shape) (Message, error) {
	return withShape(TypeShapeUpdated, room, s, "")
}

// Erase lists persistent ids to drop.
func Erase(room int64, ids []int64) Message {
	return Message{Type: TypeErase, RoomID: room, ShapeIDs: ids}
}

func ClearAll(room int64) Message { return Message{Type: TypeClearAll, RoomID: room} }

// Failure tells the origin session its operation was dropped.
func Failure(room int64, corr string, err error) Message {
	return Message{Type: TypeError, RoomID: room, CorrelationID: corr, Error: err.Error()}
}
