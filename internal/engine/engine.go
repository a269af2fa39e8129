package engine

import (
	"strings"
	"time"

	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
)

var (
	ErrPlayerNotFound      = apperr.New(apperr.ErrCodePlayerNotFound, "player not found in room")
	ErrInvalidName         = apperr.New(apperr.ErrCodeValidation, "player name must be 1-32 characters")
	ErrInvalidTeam         = apperr.New(apperr.ErrCodeInvalidTeam, "team does not exist in room")
	ErrTeamFull            = apperr.New(apperr.ErrCodeTeamFull, "team is full")
	ErrTeamEliminated      = apperr.New(apperr.ErrCodeTeamEliminated, "team has been eliminated")
	ErrNoActiveQuestion    = apperr.New(apperr.ErrCodeNoActiveQuestion, "no question has been started")
	ErrInvalidQuestion     = apperr.New(apperr.ErrCodeInvalidQuestion, "question is not the room's current question")
	ErrQuestionExpired     = apperr.New(apperr.ErrCodeQuestionExpired, "question time is over")
	ErrAnswerOutOfRange    = apperr.New(apperr.ErrCodeValidation, "answer index out of range")
	ErrDuplicateSubmission = apperr.New(apperr.ErrCodeDuplicateSubmission, "player already answered this question")
	ErrActionNotAllowed    = apperr.New(apperr.ErrCodeActionNotAllowed, "action not allowed")
	ErrUnsupportedCommand  = apperr.New(apperr.ErrCodeInternalError, "unsupported command")
)

const maxNameLength = 32

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	HP   int    `json:"hp"`
}

func (t Team) Eliminated() bool { return t.HP <= 0 }

type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	TeamID   string    `json:"teamId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ActiveQuestion is the room's current question slot. Everything needed
// to judge an answer is copied in at start time so later bank edits do
// not affect a running question.
type ActiveQuestion struct {
	CurrentQuestionID string          `json:"currentQuestionId"`
	Round             int             `json:"round"`
	StartedAt         time.Time       `json:"startedAt"`
	IsLocked          bool            `json:"isLocked"`
	Text              string          `json:"text"`
	Answers           []string        `json:"answers"`
	CorrectIndex      int             `json:"correctIndex"`
	TimeLimitMs       int             `json:"timeLimitMs"`
	Explanation       string          `json:"explanation,omitempty"`
	DamageTaken       map[string]int  `json:"damageTaken,omitempty"`
	ActionsUsed       map[string]bool `json:"actionsUsed,omitempty"`
}

type Submission struct {
	PlayerID    string `json:"playerId"`
	QuestionID  string `json:"questionId"`
	Round       int    `json:"round"`
	AnswerIndex int    `json:"answerIndex"`
	TimeMs      int    `json:"timeMs"`
	IsCorrect   bool   `json:"isCorrect"`
	Score       int    `json:"score"`
}

type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	TeamID   string `json:"teamId"`
	Score    int    `json:"score"`
}

// Room is the authoritative record of one battle room.
type Room struct {
	ID          string            `json:"id"`
	Code        string            `json:"code"`
	Config      Config            `json:"config"`
	Teams       []Team            `json:"teams"`
	Players     map[string]Player `json:"players"`
	Question    *ActiveQuestion   `json:"question,omitempty"`
	Submissions []Submission      `json:"submissions"`
	Scoreboard  []ScoreEntry      `json:"scoreboard"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Rules are server-side settings that are not part of the host's config.
type Rules struct {
	// AnswerGrace is how long after the time limit answers are still
	// accepted (scored with no speed bonus).
	AnswerGrace time.Duration
}

type CommandType string

const (
	CmdJoin          CommandType = "Join"
	CmdStartQuestion CommandType = "StartQuestion"
	CmdSubmitAnswer  CommandType = "SubmitAnswer"
	CmdLockQuestion  CommandType = "LockQuestion"
	CmdTeamAction    CommandType = "TeamAction"
)

type ActionKind string

const (
	ActionAttack ActionKind = "attack"
	ActionBuff   ActionKind = "buff"
)

/*
	CmdJoin          -> EvtPlayerJoined
	CmdStartQuestion -> EvtQuestionStarted
	CmdSubmitAnswer  -> EvtAnswerSubmitted -> EvtScoreboardUpdated
	CmdLockQuestion  -> EvtQuestionLocked (only for the round it was armed for)
	CmdTeamAction    -> EvtTeamHPChanged [-> EvtTeamEliminated]
*/

// Command is a request to mutate a room. At is the server time the
// command is applied with; callers never pass client clocks.
type Command struct {
	Type         CommandType
	At           time.Time
	PlayerID     string
	PlayerName   string
	TeamID       string
	Question     Question
	QuestionID   string
	Round        int
	AnswerIndex  int
	Action       ActionKind
	TargetTeamID string
}

type EventType string

const (
	EvtRoomSnapshot      EventType = "ROOM_SNAPSHOT"
	EvtPlayerJoined      EventType = "PLAYER_JOINED"
	EvtQuestionStarted   EventType = "QUESTION_STARTED"
	EvtAnswerSubmitted   EventType = "ANSWER_SUBMITTED"
	EvtScoreboardUpdated EventType = "SCOREBOARD_UPDATED"
	EvtQuestionLocked    EventType = "QUESTION_LOCKED"
	EvtTeamHPChanged     EventType = "TEAM_HP_CHANGED"
	EvtTeamEliminated    EventType = "TEAM_ELIMINATED"
)

// Event is a fact produced by Apply. Data is one of the *Payload types
// and is safe to send to every client of the room.
type Event struct {
	Type EventType
	Data any
}

type PlayerJoinedPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	TeamID   string `json:"teamId"`
}

type QuestionStartedPayload struct {
	RoomID      string       `json:"roomId"`
	QuestionID  string       `json:"questionId"`
	Question    QuestionView `json:"question"`
	TimeLimitMs int          `json:"timeLimitMs"`
	StartedAt   time.Time    `json:"startedAt"`
}

type AnswerSubmittedPayload struct {
	RoomID     string `json:"roomId"`
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	Score      int    `json:"score"`
}

type ScoreboardPayload struct {
	RoomID     string       `json:"roomId"`
	Scoreboard []ScoreEntry `json:"scoreboard"`
}

type QuestionLockedPayload struct {
	RoomID       string `json:"roomId"`
	QuestionID   string `json:"questionId"`
	CorrectIndex int    `json:"correctIndex"`
	Explanation  string `json:"explanation,omitempty"`
}

type TeamHPPayload struct {
	RoomID   string     `json:"roomId"`
	TeamID   string     `json:"teamId"`
	HP       int        `json:"hp"`
	Delta    int        `json:"delta"`
	Action   ActionKind `json:"action"`
	PlayerID string     `json:"playerId"`
}

type TeamEliminatedPayload struct {
	RoomID   string `json:"roomId"`
	TeamID   string `json:"teamId"`
	Confetti bool   `json:"confetti"`
}

// Apply validates cmd against s and returns the resulting events and the
// new room. s is never modified; on error the original room is returned.
func Apply(s Room, cmd Command, rules Rules) ([]Event, Room, error) {
	switch cmd.Type {
	case CmdJoin:
		return applyJoin(s, cmd)
	case CmdStartQuestion:
		return applyStartQuestion(s, cmd)
	case CmdSubmitAnswer:
		return applySubmit(s, cmd, rules)
	case CmdLockQuestion:
		return applyLock(s, cmd)
	case CmdTeamAction:
		return applyTeamAction(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyJoin(s Room, cmd Command) ([]Event, Room, error) {
	name := strings.TrimSpace(cmd.PlayerName)
	if name == "" || len([]rune(name)) > maxNameLength {
		return nil, s, ErrInvalidName
	}

	teamID := NormalizeTeamID(cmd.TeamID)
	idx := s.teamIndex(teamID)
	if idx < 0 {
		return nil, s, ErrInvalidTeam
	}
	if s.Teams[idx].Eliminated() {
		return nil, s, ErrTeamEliminated
	}
	if s.TeamSize(teamID) >= s.Config.PlayersPerTeamMax {
		return nil, s, ErrTeamFull
	}

	newState := s.Clone()
	newState.Players[cmd.PlayerID] = Player{ID: cmd.PlayerID, Name: name, TeamID: teamID, JoinedAt: cmd.At}
	newState.Scoreboard = append(newState.Scoreboard, ScoreEntry{PlayerID: cmd.PlayerID, Name: name, TeamID: teamID})
	newState.UpdatedAt = cmd.At

	events := []Event{{Type: EvtPlayerJoined, Data: PlayerJoinedPayload{
		RoomID: s.ID, PlayerID: cmd.PlayerID, Name: name, TeamID: teamID,
	}}}
	return events, newState, nil
}

func applyStartQuestion(s Room, cmd Command) ([]Event, Room, error) {
	q := cmd.Question
	if q.ID == "" || len(q.Answers) == 0 || q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Answers) {
		return nil, s, ErrInvalidQuestion
	}

	round := 1
	if s.Question != nil {
		round = s.Question.Round + 1
	}

	newState := s.Clone()
	newState.Question = &ActiveQuestion{
		CurrentQuestionID: q.ID,
		Round:             round,
		StartedAt:         cmd.At,
		IsLocked:          false,
		Text:              q.Question,
		Answers:           append([]string(nil), q.Answers...),
		CorrectIndex:      q.CorrectIndex,
		TimeLimitMs:       s.Config.TimePerQuestionMs,
		Explanation:       q.Explanation,
		DamageTaken:       map[string]int{},
		ActionsUsed:       map[string]bool{},
	}
	newState.UpdatedAt = cmd.At

	events := []Event{{Type: EvtQuestionStarted, Data: QuestionStartedPayload{
		RoomID:      s.ID,
		QuestionID:  q.ID,
		Question:    q.View(),
		TimeLimitMs: s.Config.TimePerQuestionMs,
		StartedAt:   cmd.At,
	}}}
	return events, newState, nil
}

func applySubmit(s Room, cmd Command, rules Rules) ([]Event, Room, error) {
	player, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, s, ErrPlayerNotFound
	}
	q := s.Question
	if q == nil {
		return nil, s, ErrNoActiveQuestion
	}
	if cmd.QuestionID != q.CurrentQuestionID {
		return nil, s, ErrInvalidQuestion
	}
	if cmd.AnswerIndex < 0 || cmd.AnswerIndex >= len(q.Answers) {
		return nil, s, ErrAnswerOutOfRange
	}
	if s.HasSubmitted(cmd.PlayerID, q.Round) {
		return nil, s, ErrDuplicateSubmission
	}

	elapsed := ElapsedMs(q.StartedAt, cmd.At)
	limit := q.TimeLimitMs
	if q.IsLocked || elapsed > limit+int(rules.AnswerGrace.Milliseconds()) {
		return nil, s, ErrQuestionExpired
	}

	isCorrect := cmd.AnswerIndex == q.CorrectIndex
	score := Calculate(isCorrect, limit-elapsed, limit, s.Config.BaseScore, s.Config.SpeedBonusMax)

	newState := s.Clone()
	newState.Submissions = append(newState.Submissions, Submission{
		PlayerID:    cmd.PlayerID,
		QuestionID:  q.CurrentQuestionID,
		Round:       q.Round,
		AnswerIndex: cmd.AnswerIndex,
		TimeMs:      elapsed,
		IsCorrect:   isCorrect,
		Score:       score,
	})
	newState.addScore(player, score)
	newState.UpdatedAt = cmd.At

	events := []Event{
		{Type: EvtAnswerSubmitted, Data: AnswerSubmittedPayload{
			RoomID: s.ID, PlayerID: cmd.PlayerID, QuestionID: q.CurrentQuestionID, Score: score,
		}},
		{Type: EvtScoreboardUpdated, Data: ScoreboardPayload{
			RoomID: s.ID, Scoreboard: append([]ScoreEntry(nil), newState.Scoreboard...),
		}},
	}
	return events, newState, nil
}

func applyLock(s Room, cmd Command) ([]Event, Room, error) {
	q := s.Question
	if q == nil {
		return nil, s, ErrNoActiveQuestion
	}
	// A lock armed for an earlier round is stale.
	if q.Round != cmd.Round || q.IsLocked {
		return nil, s, nil
	}

	newState := s.Clone()
	newState.Question.IsLocked = true
	newState.UpdatedAt = cmd.At

	events := []Event{{Type: EvtQuestionLocked, Data: QuestionLockedPayload{
		RoomID:       s.ID,
		QuestionID:   q.CurrentQuestionID,
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.Explanation,
	}}}
	return events, newState, nil
}

func applyTeamAction(s Room, cmd Command) ([]Event, Room, error) {
	player, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, s, ErrPlayerNotFound
	}
	q := s.Question
	if q == nil {
		return nil, s, ErrNoActiveQuestion
	}
	if q.ActionsUsed[cmd.PlayerID] || !s.answeredCorrectly(cmd.PlayerID, q.Round) {
		return nil, s, ErrActionNotAllowed
	}
	own := s.teamIndex(player.TeamID)
	if own < 0 {
		return nil, s, ErrInvalidTeam
	}
	if s.Teams[own].Eliminated() {
		return nil, s, ErrTeamEliminated
	}

	newState := s.Clone()
	newState.Question.ActionsUsed[cmd.PlayerID] = true
	newState.UpdatedAt = cmd.At

	var events []Event
	switch cmd.Action {
	case ActionAttack:
		targetID := NormalizeTeamID(cmd.TargetTeamID)
		target := s.teamIndex(targetID)
		if target < 0 {
			return nil, s, ErrInvalidTeam
		}
		if target == own {
			return nil, s, ErrActionNotAllowed
		}
		if s.Teams[target].Eliminated() {
			return nil, s, ErrTeamEliminated
		}

		remaining := s.Config.MaxDamagePerTurn() - q.DamageTaken[targetID]
		damage := min(s.Config.AttackDamage(), remaining, s.Teams[target].HP)
		if damage <= 0 {
			return nil, s, ErrActionNotAllowed
		}

		team := &newState.Teams[target]
		team.HP -= damage
		newState.Question.DamageTaken[targetID] += damage
		events = append(events, Event{Type: EvtTeamHPChanged, Data: TeamHPPayload{
			RoomID: s.ID, TeamID: targetID, HP: team.HP, Delta: -damage, Action: ActionAttack, PlayerID: cmd.PlayerID,
		}})
		if team.Eliminated() {
			events = append(events, Event{Type: EvtTeamEliminated, Data: TeamEliminatedPayload{
				RoomID: s.ID, TeamID: targetID, Confetti: s.Config.EliminationConfetti,
			}})
		}

	case ActionBuff:
		team := &newState.Teams[own]
		heal := min(s.Config.BuffHeal(), s.Config.MaxHPPerTeam-team.HP)
		team.HP += heal
		events = append(events, Event{Type: EvtTeamHPChanged, Data: TeamHPPayload{
			RoomID: s.ID, TeamID: team.ID, HP: team.HP, Delta: heal, Action: ActionBuff, PlayerID: cmd.PlayerID,
		}})

	default:
		return nil, s, ErrActionNotAllowed
	}

	return events, newState, nil
}
