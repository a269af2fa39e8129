package engine

import (
	"slices"
	"strings"
	"time"
)

// RoomView is the client-facing room: the active question is reduced to
// its public fields and submissions are omitted.
type RoomView struct {
	ID         string        `json:"id"`
	Code       string        `json:"code"`
	Config     Config        `json:"config"`
	Teams      []Team        `json:"teams"`
	Players    []Player      `json:"players"`
	Question   *QuestionSlot `json:"question,omitempty"`
	Scoreboard []ScoreEntry  `json:"scoreboard"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

type QuestionSlot struct {
	CurrentQuestionID string       `json:"currentQuestionId"`
	StartedAt         time.Time    `json:"startedAt"`
	IsLocked          bool         `json:"isLocked"`
	TimeLimitMs       int          `json:"timeLimitMs"`
	Question          QuestionView `json:"question"`
	// Revealed only once the question is locked.
	CorrectIndex *int `json:"correctIndex,omitempty"`
}

func (s Room) View() RoomView {
	v := RoomView{
		ID:         s.ID,
		Code:       s.Code,
		Config:     s.Config,
		Teams:      append([]Team(nil), s.Teams...),
		Players:    make([]Player, 0, len(s.Players)),
		Scoreboard: append([]ScoreEntry{}, s.Scoreboard...),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	for _, p := range s.Players {
		v.Players = append(v.Players, p)
	}
	sortPlayers(v.Players)

	if q := s.Question; q != nil {
		slot := &QuestionSlot{
			CurrentQuestionID: q.CurrentQuestionID,
			StartedAt:         q.StartedAt,
			IsLocked:          q.IsLocked,
			TimeLimitMs:       q.TimeLimitMs,
			Question:          QuestionView{Text: q.Text, Answers: append([]string(nil), q.Answers...)},
		}
		if q.IsLocked {
			idx := q.CorrectIndex
			slot.CorrectIndex = &idx
		}
		v.Question = slot
	}
	return v
}

func sortPlayers(ps []Player) {
	slices.SortFunc(ps, func(a, b Player) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
