package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

// ClientMessage is what a WebSocket client may send.
type ClientMessage struct {
	Type         string `json:"type"` // "SUBMIT_ANSWER" | "TEAM_ACTION" | "PING"
	PlayerID     string `json:"playerId,omitempty"`
	QuestionID   string `json:"questionId,omitempty"`
	AnswerIndex  *int   `json:"answerIndex,omitempty"`
	TimeMs       int    `json:"timeMs,omitempty"`
	Kind         string `json:"kind,omitempty"`
	TargetTeamID string `json:"targetTeamId,omitempty"`
}

const (
	MsgSubmitAnswer = "SUBMIT_ANSWER"
	MsgTeamAction   = "TEAM_ACTION"
	MsgPing         = "PING"
	MsgPong         = "PONG"
	MsgError        = "ERROR"

	MsgAnswerResult engine.EventType = "ANSWER_RESULT"
)

type SnapshotPayload struct {
	RoomID string          `json:"roomId"`
	Room   engine.RoomView `json:"room"`
}

type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// EncodeEvent renders an event as one flat JSON object whose "type" field
// sits next to the payload fields, e.g. {"type":"PLAYER_JOINED","roomId":...}.
func EncodeEvent(e engine.Event) ([]byte, error) {
	return encode(string(e.Type), e.Data)
}

func EncodeSnapshot(view engine.RoomView) ([]byte, error) {
	return encode(string(engine.EvtRoomSnapshot), SnapshotPayload{RoomID: view.ID, Room: view})
}

func EncodeError(code, message string) []byte {
	b, err := encode(MsgError, ErrorPayload{Error: code, Message: message})
	if err != nil {
		return []byte(`{"type":"ERROR","error":"INTERNAL_ERROR","message":"internal error"}`)
	}
	return b
}

func EncodePong() []byte {
	return []byte(`{"type":"PONG"}`)
}

func encode(typ string, data any) ([]byte, error) {
	body := []byte("{}")
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", typ)
	}
	typeJSON, _ := json.Marshal(typ)

	var buf bytes.Buffer
	buf.Grow(len(body) + len(typeJSON) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(typeJSON)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
