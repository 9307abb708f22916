package session

// PaletteState is the colour of one palette cell.
type PaletteState string

const (
	PaletteUnanswered PaletteState = "unanswered"
	PaletteAnswered   PaletteState = "answered"
	// PaletteMarked overrides answered: a marked question shows as marked either way.
	PaletteMarked PaletteState = "marked"
)

// PaletteEntry is one cell of the question palette.
type PaletteEntry struct {
	Index      int          `json:"index"`
	QuestionID string       `json:"question_id"`
	State      PaletteState `json:"state"`
	Answered   bool         `json:"answered"`
	Current    bool         `json:"current"`
}

// Navigator holds the current question pointer and in-memory answer state. It is not
// safe for concurrent use; the controller serializes access.
//
// Every mutation, and every move away from a question, hands that question's state to
// flush. The flush for the outgoing question is issued before the pointer moves.
type Navigator struct {
	ids     []string
	index   map[string]int
	current int
	answers map[string]int
	marked  map[string]bool
	flush   func(questionID string, state AnswerState)
}

// NewNavigator positions the pointer on the first question.
func NewNavigator(questionIDs []string, flush func(string, AnswerState)) *Navigator {
	n := &Navigator{
		ids:     append([]string(nil), questionIDs...),
		index:   make(map[string]int, len(questionIDs)),
		answers: make(map[string]int),
		marked:  make(map[string]bool),
		flush:   flush,
	}
	for i, id := range n.ids {
		n.index[id] = i
	}
	return n
}

// Restore loads persisted state without flushing it back.
func (n *Navigator) Restore(questionID string, state AnswerState) {
	if _, ok := n.index[questionID]; !ok {
		return
	}
	if state.Selected != nil {
		n.answers[questionID] = *state.Selected
	}
	if state.Marked {
		n.marked[questionID] = true
	}
}

// Len is the number of questions.
func (n *Navigator) Len() int { return len(n.ids) }

// Contains reports whether the question belongs to the exam.
func (n *Navigator) Contains(questionID string) bool {
	_, ok := n.index[questionID]
	return ok
}

// Current returns the pointer and the question it addresses.
func (n *Navigator) Current() (int, string) {
	if len(n.ids) == 0 {
		return 0, ""
	}
	return n.current, n.ids[n.current]
}

// State returns the in-memory state of a question.
func (n *Navigator) State(questionID string) AnswerState {
	var st AnswerState
	if v, ok := n.answers[questionID]; ok {
		st.Selected = &v
	}
	st.Marked = n.marked[questionID]
	return st
}

// States returns the state of every question that has an answer or a mark.
func (n *Navigator) States() map[string]AnswerState {
	out := make(map[string]AnswerState)
	for _, id := range n.ids {
		st := n.State(id)
		if !st.Empty() {
			out[id] = st
		}
	}
	return out
}

// Answers returns a copy of the selected options by question id.
func (n *Navigator) Answers() map[string]int {
	out := make(map[string]int, len(n.answers))
	for k, v := range n.answers {
		out[k] = v
	}
	return out
}

// Marked returns the ids of questions marked for review.
func (n *Navigator) Marked() map[string]bool {
	out := make(map[string]bool, len(n.marked))
	for k, v := range n.marked {
		if v {
			out[k] = true
		}
	}
	return out
}

// Select records an answer.
func (n *Navigator) Select(questionID string, option int) error {
	if !n.Contains(questionID) {
		return ErrUnknownQuestion
	}
	n.answers[questionID] = option
	n.emit(questionID)
	return nil
}

// Clear removes an answer.
func (n *Navigator) Clear(questionID string) error {
	if !n.Contains(questionID) {
		return ErrUnknownQuestion
	}
	delete(n.answers, questionID)
	n.emit(questionID)
	return nil
}

// SetMarked flags or unflags a question for review.
func (n *Navigator) SetMarked(questionID string, marked bool) error {
	if !n.Contains(questionID) {
		return ErrUnknownQuestion
	}
	if marked {
		n.marked[questionID] = true
	} else {
		delete(n.marked, questionID)
	}
	n.emit(questionID)
	return nil
}

// Next moves forward, staying put on the last question.
func (n *Navigator) Next() int {
	if n.current+1 < len(n.ids) {
		n.moveTo(n.current + 1)
	}
	return n.current
}

// Prev moves back, staying put on the first question.
func (n *Navigator) Prev() int {
	if n.current > 0 {
		n.moveTo(n.current - 1)
	}
	return n.current
}

// Jump moves to an arbitrary question.
func (n *Navigator) Jump(i int) (int, error) {
	if i < 0 || i >= len(n.ids) {
		return n.current, ErrInvalidQuestionIndex
	}
	n.moveTo(i)
	return n.current, nil
}

// Seek places the pointer on a question without flushing. A resumed session
// reopens on the question the student last touched.
func (n *Navigator) Seek(questionID string) {
	if i, ok := n.index[questionID]; ok {
		n.current = i
	}
}

// Palette returns one entry per question in exam order.
func (n *Navigator) Palette() []PaletteEntry {
	out := make([]PaletteEntry, len(n.ids))
	for i, id := range n.ids {
		_, answered := n.answers[id]
		state := PaletteUnanswered
		switch {
		case n.marked[id]:
			state = PaletteMarked
		case answered:
			state = PaletteAnswered
		}
		out[i] = PaletteEntry{
			Index:      i,
			QuestionID: id,
			State:      state,
			Answered:   answered,
			Current:    i == n.current,
		}
	}
	return out
}

func (n *Navigator) moveTo(i int) {
	if i == n.current {
		return
	}
	n.emit(n.ids[n.current])
	n.current = i
}

func (n *Navigator) emit(questionID string) {
	if n.flush != nil {
		n.flush(questionID, n.State(questionID))
	}
}
