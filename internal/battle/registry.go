package battle

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/google/uuid"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/repository"
	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

const (
	codeLength   = 6
	codeAttempts = 5
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type CreateRoomResult struct {
	ID     string        `json:"id"`
	Code   string        `json:"code"`
	Config engine.Config `json:"config"`
	Teams  []engine.Team `json:"teams"`
}

// CreateRoom clamps the requested config, builds the teams and stores the
// room under a fresh id and join code.
func (s *Service) CreateRoom(ctx context.Context, in engine.ConfigInput) (CreateRoomResult, error) {
	cfg := engine.NewConfig(in)

	for attempt := 1; attempt <= codeAttempts; attempt++ {
		code, err := s.genCode()
		if err != nil {
			return CreateRoomResult{}, apperr.Wrap(err, apperr.ErrCodeInternalError, "failed to generate room code")
		}

		room := engine.NewRoom(uuid.NewString(), code, cfg, s.now())
		err = s.rooms.Create(ctx, room)
		if errors.Is(err, repository.ErrCodeTaken) {
			logger.Debug("collision on code, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return CreateRoomResult{}, err
		}

		logger.Info("room created", "roomId", room.ID, "code", room.Code, "numTeams", cfg.NumTeams)
		return CreateRoomResult{ID: room.ID, Code: room.Code, Config: room.Config, Teams: room.Teams}, nil
	}
	return CreateRoomResult{}, apperr.New(apperr.ErrCodeInternalError, "could not allocate a unique room code")
}

// ResolveCode maps a join code to its room id.
func (s *Service) ResolveCode(ctx context.Context, code string) (string, error) {
	return s.rooms.ResolveCode(ctx, code)
}
