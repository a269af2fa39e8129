package engine

// Config holds the per-room tuning chosen by the host. It is fixed once
// the room exists; every numeric field lies inside its Range.
type Config struct {
	NumTeams                int  `json:"numTeams"`
	MaxHPPerTeam            int  `json:"maxHpPerTeam"`
	TimePerQuestionMs       int  `json:"timePerQuestionMs"`
	PlayersPerTeamMax       int  `json:"playersPerTeamMax"`
	BaseScore               int  `json:"baseScore"`
	SpeedBonusMax           int  `json:"speedBonusMax"`
	AttackDamagePercent     int  `json:"attackDamagePercent"`
	BuffHealPercent         int  `json:"buffHealPercent"`
	MaxDamagePerTurnPercent int  `json:"maxDamagePerTurnPercent"`
	EliminationConfetti     bool `json:"eliminationConfetti"`
}

// ConfigInput is the host's request. Nil fields take the default.
type ConfigInput struct {
	NumTeams                *int  `json:"numTeams,omitempty"`
	MaxHPPerTeam            *int  `json:"maxHpPerTeam,omitempty"`
	TimePerQuestionMs       *int  `json:"timePerQuestionMs,omitempty"`
	PlayersPerTeamMax       *int  `json:"playersPerTeamMax,omitempty"`
	BaseScore               *int  `json:"baseScore,omitempty"`
	SpeedBonusMax           *int  `json:"speedBonusMax,omitempty"`
	AttackDamagePercent     *int  `json:"attackDamagePercent,omitempty"`
	BuffHealPercent         *int  `json:"buffHealPercent,omitempty"`
	MaxDamagePerTurnPercent *int  `json:"maxDamagePerTurnPercent,omitempty"`
	EliminationConfetti     *bool `json:"eliminationConfetti,omitempty"`
}

type Range struct {
	Min, Max, Default int
}

func (r Range) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

func (r Range) From(v *int) int {
	if v == nil {
		return r.Default
	}
	return r.Clamp(*v)
}

var (
	NumTeamsRange                = Range{Min: 2, Max: 6, Default: 2}
	MaxHPPerTeamRange            = Range{Min: 100, Max: 300, Default: 200}
	TimePerQuestionMsRange       = Range{Min: 15000, Max: 30000, Default: 20000}
	PlayersPerTeamMaxRange       = Range{Min: 2, Max: 12, Default: 6}
	BaseScoreRange               = Range{Min: 800, Max: 1200, Default: 1000}
	SpeedBonusMaxRange           = Range{Min: 300, Max: 800, Default: 500}
	AttackDamagePercentRange     = Range{Min: 5, Max: 15, Default: 10}
	BuffHealPercentRange         = Range{Min: 3, Max: 8, Default: 5}
	MaxDamagePerTurnPercentRange = Range{Min: 20, Max: 40, Default: 30}
)

// NewConfig builds a Config from host input. Out-of-range values are
// corrected silently, never rejected.
func NewConfig(in ConfigInput) Config {
	confetti := true
	if in.EliminationConfetti != nil {
		confetti = *in.EliminationConfetti
	}
	return Config{
		NumTeams:                NumTeamsRange.From(in.NumTeams),
		MaxHPPerTeam:            MaxHPPerTeamRange.From(in.MaxHPPerTeam),
		TimePerQuestionMs:       TimePerQuestionMsRange.From(in.TimePerQuestionMs),
		PlayersPerTeamMax:       PlayersPerTeamMaxRange.From(in.PlayersPerTeamMax),
		BaseScore:               BaseScoreRange.From(in.BaseScore),
		SpeedBonusMax:           SpeedBonusMaxRange.From(in.SpeedBonusMax),
		AttackDamagePercent:     AttackDamagePercentRange.From(in.AttackDamagePercent),
		BuffHealPercent:         BuffHealPercentRange.From(in.BuffHealPercent),
		MaxDamagePerTurnPercent: MaxDamagePerTurnPercentRange.From(in.MaxDamagePerTurnPercent),
		EliminationConfetti:     confetti,
	}
}

func DefaultConfig() Config { return NewConfig(ConfigInput{}) }

// percentOfHP returns round(MaxHPPerTeam * pct / 100).
func (c Config) percentOfHP(pct int) int {
	return (c.MaxHPPerTeam*pct + 50) / 100
}

func (c Config) AttackDamage() int { return c.percentOfHP(c.AttackDamagePercent) }
func (c Config) BuffHeal() int { return c.percentOfHP(c.BuffHealPercent) }
func (c Config) MaxDamagePerTurn() int { return c.percentOfHP(c.MaxDamagePerTurnPercent) }
