// Package battle is the application layer: it resolves rooms and routes
// every mutation through the room's lobby so changes to one room are
// applied one at a time.
package battle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/hub"
	"github.com/DoyleJ11/quiz-battle-backend/internal/lobby"
	"github.com/DoyleJ11/quiz-battle-backend/internal/repository"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

type Service struct {
	rooms   *repository.Rooms
	hub     *hub.Hub
	now     func() time.Time
	genCode func() (string, error)
}

type Option func(*Service)

// WithClock sets the clock used for room timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces the join code generator.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.genCode = gen }
}

func NewService(rooms *repository.Rooms, h *hub.Hub, opts ...Option) *Service {
	s := &Service{rooms: rooms, hub: h, now: time.Now, genCode: GenerateCode}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type JoinResult struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type StartResult struct {
	RoomID     string `json:"roomId"`
	QuestionID string `json:"questionId"`
}

type SubmitInput struct {
	RoomID      string
	PlayerID    string
	QuestionID  string
	AnswerIndex int
	// TimeMs is what the client measured. It is accepted but scoring
	// uses the server clock.
	TimeMs int
}

type SubmitResult struct {
	Score      int  `json:"score"`
	IsCorrect  bool `json:"isCorrect"`
	TimeLeftMs int  `json:"timeLeftMs"`
}

type ActionInput struct {
	RoomID       string
	PlayerID     string
	Kind         engine.ActionKind
	TargetTeamID string
}

type ActionResult struct {
	Teams []engine.Team `json:"teams"`
}

// run hands fn the room's lobby. A lobby that stopped between lookup and
// use (idle reaping) is replaced once.
func (s *Service) run(ctx context.Context, roomID string, fn func(*lobby.Lobby) lobby.Result) lobby.Result {
	var res lobby.Result
	for attempt := 0; attempt < 2; attempt++ {
		lb, err := s.hub.Lobby(ctx, roomID)
		if err != nil {
			return lobby.Result{Err: err}
		}
		res = fn(lb)
		if !errors.Is(res.Err, lobby.ErrClosed) {
			return res
		}
	}
	return res
}

// roomIDFromClient rejects ids that cannot name a room before any worker
// is started for them.
func roomIDFromClient(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", repository.ErrRoomNotFound
	}
	return id, nil
}

func (s *Service) Join(ctx context.Context, code, name, teamID string) (JoinResult, error) {
	roomID, err := s.rooms.ResolveCode(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}

	playerID := uuid.NewString()
	res := s.run(ctx, roomID, func(lb *lobby.Lobby) lobby.Result {
		return lb.Do(ctx, engine.Command{
			Type:       engine.CmdJoin,
			PlayerID:   playerID,
			PlayerName: name,
			TeamID:     teamID,
		})
	})
	if res.Err != nil {
		return JoinResult{}, res.Err
	}
	return JoinResult{RoomID: roomID, PlayerID: playerID}, nil
}

func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	roomID, err := roomIDFromClient(in.RoomID)
	if err != nil {
		return SubmitResult{}, err
	}

	res := s.run(ctx, roomID, func(lb *lobby.Lobby) lobby.Result {
		return lb.Do(ctx, engine.Command{
			Type:        engine.CmdSubmitAnswer,
			PlayerID:    in.PlayerID,
			QuestionID:  in.QuestionID,
			AnswerIndex: in.AnswerIndex,
		})
	})
	if res.Err != nil {
		return SubmitResult{}, res.Err
	}

	q := res.Room.Question
	for i := len(res.Room.Submissions) - 1; i >= 0; i-- {
		sub := res.Room.Submissions[i]
		if sub.PlayerID == in.PlayerID && sub.Round == q.Round {
			if in.TimeMs > 0 {
				logger.Debug("answer timing", "roomId", roomID, "playerId", in.PlayerID,
					"serverMs", sub.TimeMs, "clientMs", in.TimeMs)
			}
			return SubmitResult{
				Score:      sub.Score,
				IsCorrect:  sub.IsCorrect,
				TimeLeftMs: max(q.TimeLimitMs-sub.TimeMs, 0),
			}, nil
		}
	}
	return SubmitResult{}, errors.New("submission missing after apply")
}

func (s *Service) TeamAction(ctx context.Context, in ActionInput) (ActionResult, error) {
	roomID, err := roomIDFromClient(in.RoomID)
	if err != nil {
		return ActionResult{}, err
	}

	res := s.run(ctx, roomID, func(lb *lobby.Lobby) lobby.Result {
		return lb.Do(ctx, engine.Command{
			Type:         engine.CmdTeamAction,
			PlayerID:     in.PlayerID,
			Action:       in.Kind,
			TargetTeamID: in.TargetTeamID,
		})
	})
	if res.Err != nil {
		return ActionResult{}, res.Err
	}
	return ActionResult{Teams: res.Room.Teams}, nil
}

// Room returns the client view of the room behind code.
func (s *Service) Room(ctx context.Context, code string) (engine.RoomView, error) {
	roomID, err := s.rooms.ResolveCode(ctx, code)
	if err != nil {
		return engine.RoomView{}, err
	}
	room, _, err := s.rooms.Load(ctx, roomID)
	if err != nil {
		return engine.RoomView{}, err
	}
	return room.View(), nil
}

// Lobby exposes the room's worker to the WebSocket layer.
func (s *Service) Lobby(ctx context.Context, code string) (*lobby.Lobby, error) {
	roomID, err := s.rooms.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.hub.Lobby(ctx, roomID)
}
