package engine

import (
	"maps"
	"strings"
	"time"
)

// NewRoom builds a fresh room with one full-HP team per configured slot.
func NewRoom(id, code string, cfg Config, now time.Time) Room {
	teams := make([]Team, 0, cfg.NumTeams)
	for _, teamID := range TeamIDs(cfg.NumTeams) {
		teams = append(teams, Team{ID: teamID, Name: "Team " + teamID, HP: cfg.MaxHPPerTeam})
	}
	return Room{
		ID:          id,
		Code:        code,
		Config:      cfg,
		Teams:       teams,
		Players:     map[string]Player{},
		Submissions: []Submission{},
		Scoreboard:  []ScoreEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TeamIDs returns "A", "B", ... for n teams.
func TeamIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('A' + i))
	}
	return ids
}

func NormalizeTeamID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Clone returns a deep copy so Apply never aliases the caller's maps and
// slices.
func (s Room) Clone() Room {
	c := s
	c.Teams = append([]Team(nil), s.Teams...)
	c.Players = maps.Clone(s.Players)
	if c.Players == nil {
		c.Players = map[string]Player{}
	}
	c.Submissions = append([]Submission{}, s.Submissions...)
	c.Scoreboard = append([]ScoreEntry{}, s.Scoreboard...)
	if s.Question != nil {
		q := *s.Question
		q.Answers = append([]string(nil), s.Question.Answers...)
		q.DamageTaken = maps.Clone(s.Question.DamageTaken)
		if q.DamageTaken == nil {
			q.DamageTaken = map[string]int{}
		}
		q.ActionsUsed = maps.Clone(s.Question.ActionsUsed)
		if q.ActionsUsed == nil {
			q.ActionsUsed = map[string]bool{}
		}
		c.Question = &q
	}
	return c
}

func (s Room) teamIndex(id string) int {
	for i, t := range s.Teams {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s Room) Team(id string) (Team, bool) {
	if i := s.teamIndex(NormalizeTeamID(id)); i >= 0 {
		return s.Teams[i], true
	}
	return Team{}, false
}

func (s Room) TeamSize(id string) int {
	n := 0
	for _, p := range s.Players {
		if p.TeamID == id {
			n++
		}
	}
	return n
}

func (s Room) HasSubmitted(playerID string, round int) bool {
	for _, sub := range s.Submissions {
		if sub.PlayerID == playerID && sub.Round == round {
			return true
		}
	}
	return false
}

func (s Room) answeredCorrectly(playerID string, round int) bool {
	for _, sub := range s.Submissions {
		if sub.PlayerID == playerID && sub.Round == round {
			return sub.IsCorrect
		}
	}
	return false
}

func (s *Room) addScore(p Player, score int) {
	for i := range s.Scoreboard {
		if s.Scoreboard[i].PlayerID == p.ID {
			s.Scoreboard[i].Score += score
			return
		}
	}
	s.Scoreboard = append(s.Scoreboard, ScoreEntry{PlayerID: p.ID, Name: p.Name, TeamID: p.TeamID, Score: score})
}

// ScoreOf returns the player's accumulated score.
func (s Room) ScoreOf(playerID string) int {
	for _, e := range s.Scoreboard {
		if e.PlayerID == playerID {
			return e.Score
		}
	}
	return 0
}

// ElapsedMs is the server-measured time since start, never negative.
func ElapsedMs(startedAt, now time.Time) int {
	d := now.Sub(startedAt)
	if d < 0 {
		return 0
	}
	return int(d.Milliseconds())
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
