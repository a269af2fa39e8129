package engine

// Question is one entry of the shared question bank in normalized form.
type Question struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Answers      []string `json:"answers"`
	CorrectIndex int      `json:"correctIndex"`
	TimeLimitMs  int      `json:"timeLimitMs"`
	Category     string   `json:"category"`
	Explanation  string   `json:"explanation"`
}

const FallbackQuestionID = "sample-1"

// FallbackQuestion is dispatched when the bank is empty so a room can
// always play.
func FallbackQuestion() Question {
	return Question{
		ID:           FallbackQuestionID,
		Question:     "Which planet is known as the Red Planet?",
		Answers:      []string{"Venus", "Mars", "Jupiter", "Mercury"},
		CorrectIndex: 1,
		TimeLimitMs:  TimePerQuestionMsRange.Default,
		Category:     "general",
		Explanation:  "Iron oxide on its surface gives Mars its reddish colour.",
	}
}

// QuestionView is what clients see: never the correct index.
type QuestionView struct {
	Text    string   `json:"text"`
	Answers []string `json:"answers"`
}

func (q Question) View() QuestionView {
	return QuestionView{Text: q.Question, Answers: append([]string(nil), q.Answers...)}
}
