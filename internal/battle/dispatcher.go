package battle

import (
	"context"

	"github.com/DoyleJ11/quiz-battle-backend/internal/lobby"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

// StartNext dispatches the next bank question to the room behind code.
// The bank read, the room update and the index advance all happen inside
// the room's lobby.
func (s *Service) StartNext(ctx context.Context, code string) (StartResult, error) {
	roomID, err := s.rooms.ResolveCode(ctx, code)
	if err != nil {
		return StartResult{}, err
	}

	res := s.run(ctx, roomID, func(lb *lobby.Lobby) lobby.Result {
		return lb.Next(ctx)
	})
	if res.Err != nil {
		return StartResult{}, res.Err
	}

	q := res.Room.Question
	logger.Info("question started", "roomId", roomID, "questionId", q.CurrentQuestionID, "round", q.Round)
	return StartResult{RoomID: roomID, QuestionID: q.CurrentQuestionID}, nil
}
