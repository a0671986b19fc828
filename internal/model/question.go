package model

// Option is a single selectable choice within a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuizQuestion is one question as delivered by the quiz backend.
// The question set is immutable for the lifetime of a session.
type QuizQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
	Marks   int      `json:"marks"`
}
