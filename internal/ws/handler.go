package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/DoyleJ11/quiz-battle-backend/internal/battle"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/lobby"
	"github.com/DoyleJ11/quiz-battle-backend/internal/types"
	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	pingInterval = 30 * time.Second
)

// Handler upgrades GET /ws?roomCode=... and streams the room's events.
// Clients may also submit answers and team actions over the socket.
func Handler(svc *battle.Service, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("roomCode")
		if code == "" {
			http.Error(w, "missing roomCode", http.StatusBadRequest)
			return
		}

		lb, err := svc.Lobby(r.Context(), code)
		if err != nil {
			http.Error(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan []byte, outboxSize)
		clientID := uuid.NewString()

		lb, err = join(r.Context(), svc, code, lb, lobby.Join{ClientID: clientID, Outbox: out})
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, "room unavailable")
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = lb.Send(ctx, lobby.Leave{ClientID: clientID})
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case payload, ok := <-out:
					if !ok {
						// lobby dropped us or stopped
						conn.Close(websocket.StatusGoingAway, "room closed")
						return
					}
					if err := write(ctx, conn, payload); err != nil {
						return
					}
				case <-ticker.C:
					pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
					err := conn.Ping(pctx)
					pcancel()
					if err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						logger.Debug("websocket read ended", "roomId", lb.RoomID(), "clientId", clientID, "error", err)
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(ctx, conn, types.EncodeError(apperr.ErrCodeValidation, "bad json"))
				continue
			}
			if reply := handle(ctx, svc, lb.RoomID(), cm); reply != nil {
				_ = write(ctx, conn, reply)
			}
		}
	}
}

// join registers the client with lb. A lobby that stopped since lookup
// (idle reaping) is looked up again once.
func join(ctx context.Context, svc *battle.Service, code string, lb *lobby.Lobby, msg lobby.Join) (*lobby.Lobby, error) {
	err := lb.Send(ctx, msg)
	if !errors.Is(err, lobby.ErrClosed) {
		return lb, err
	}
	if lb, err = svc.Lobby(ctx, code); err != nil {
		return nil, err
	}
	return lb, lb.Send(ctx, msg)
}

func write(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

type answerResult struct {
	battle.SubmitResult
	QuestionID string `json:"questionId"`
}

// handle runs one client message and returns what to send back to that
// client only. Room-wide effects arrive through the lobby as events.
func handle(ctx context.Context, svc *battle.Service, roomID string, cm types.ClientMessage) []byte {
	switch cm.Type {
	case types.MsgPing:
		return types.EncodePong()

	case types.MsgSubmitAnswer:
		if cm.AnswerIndex == nil {
			return types.EncodeError(apperr.ErrCodeValidation, "answerIndex is required")
		}
		res, err := svc.Submit(ctx, battle.SubmitInput{
			RoomID:      roomID,
			PlayerID:    cm.PlayerID,
			QuestionID:  cm.QuestionID,
			AnswerIndex: *cm.AnswerIndex,
			TimeMs:      cm.TimeMs,
		})
		if err != nil {
			return errorReply(err)
		}
		payload, err := types.EncodeEvent(engine.Event{Type: types.MsgAnswerResult, Data: answerResult{SubmitResult: res, QuestionID: cm.QuestionID}})
		if err != nil {
			return errorReply(err)
		}
		return payload

	case types.MsgTeamAction:
		_, err := svc.TeamAction(ctx, battle.ActionInput{
			RoomID:       roomID,
			PlayerID:     cm.PlayerID,
			Kind:         engine.ActionKind(cm.Kind),
			TargetTeamID: cm.TargetTeamID,
		})
		if err != nil {
			return errorReply(err)
		}
		return nil

	default:
		return types.EncodeError(apperr.ErrCodeValidation, "unknown type")
	}
}

func errorReply(err error) []byte {
	return types.EncodeError(apperr.CodeOf(err), apperr.PublicMessage(err))
}
