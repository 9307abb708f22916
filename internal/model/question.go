package model

// Content is text and/or an image reference.
type Content struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Question is a multiple-choice item with 2–4 options.
type Question struct {
	ID            string    `json:"id"`
	Prompt        Content   `json:"prompt"`
	Options       []Content `json:"options"`
	CorrectOption int       `json:"correct_option"`
	Difficulty    string    `json:"difficulty,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID      string    `json:"id"`
	Order   int       `json:"order"`
	Marks   float64   `json:"marks"`
	Prompt  Content   `json:"prompt"`
	Options []Content `json:"options"`
}

// StudentView strips the answer key.
func (q *Question) StudentView(ref QuestionRef) QuestionForStudent {
	return QuestionForStudent{
		ID:      q.ID,
		Order:   ref.Order,
		Marks:   ref.Marks,
		Prompt:  q.Prompt,
		Options: q.Options,
	}
}

// ValidOption reports whether idx addresses one of the question's options.
func (q *Question) ValidOption(idx int) bool {
	return idx >= 0 && idx < len(q.Options)
}
