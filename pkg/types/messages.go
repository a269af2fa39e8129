// Package types holds the HTTP request and response bodies.
package types

import "github.com/DoyleJ11/quiz-battle-backend/internal/engine"

// CreateRoomRequest carries the host's optional settings. Values outside
// the allowed ranges are clamped, never rejected.
type CreateRoomRequest struct {
	NumTeams                *int  `json:"numTeams"`
	MaxHPPerTeam            *int  `json:"maxHpPerTeam"`
	TimePerQuestionMs       *int  `json:"timePerQuestionMs"`
	PlayersPerTeamMax       *int  `json:"playersPerTeamMax"`
	BaseScore               *int  `json:"baseScore"`
	SpeedBonusMax           *int  `json:"speedBonusMax"`
	AttackDamagePercent     *int  `json:"attackDamagePercent"`
	BuffHealPercent         *int  `json:"buffHealPercent"`
	MaxDamagePerTurnPercent *int  `json:"maxDamagePerTurnPercent"`
	EliminationConfetti     *bool `json:"eliminationConfetti"`
}

func (r CreateRoomRequest) ConfigInput() engine.ConfigInput {
	return engine.ConfigInput{
		NumTeams:                r.NumTeams,
		MaxHPPerTeam:            r.MaxHPPerTeam,
		TimePerQuestionMs:       r.TimePerQuestionMs,
		PlayersPerTeamMax:       r.PlayersPerTeamMax,
		BaseScore:               r.BaseScore,
		SpeedBonusMax:           r.SpeedBonusMax,
		AttackDamagePercent:     r.AttackDamagePercent,
		BuffHealPercent:         r.BuffHealPercent,
		MaxDamagePerTurnPercent: r.MaxDamagePerTurnPercent,
		EliminationConfetti:     r.EliminationConfetti,
	}
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode" validate:"required,alphanum,len=6"`
	Name     string `json:"name" validate:"required,max=32"`
	TeamID   string `json:"teamId" validate:"required,max=8"`
}

type StartQuestionRequest struct {
	RoomCode string `json:"roomCode" validate:"required,alphanum,len=6"`
}

type SubmitAnswerRequest struct {
	RoomID      string `json:"roomId" validate:"required"`
	PlayerID    string `json:"playerId" validate:"required"`
	QuestionID  string `json:"questionId" validate:"required"`
	AnswerIndex *int   `json:"answerIndex" validate:"required,min=0"`
	// TimeMs is the client's own measurement; kept for compatibility.
	TimeMs int `json:"timeMs" validate:"min=0"`
}

type TeamActionRequest struct {
	RoomID       string `json:"roomId" validate:"required"`
	PlayerID     string `json:"playerId" validate:"required"`
	Kind         string `json:"kind" validate:"required,oneof=attack buff"`
	TargetTeamID string `json:"targetTeamId" validate:"required_if=Kind attack"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
