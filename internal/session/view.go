package session

import (
	"fmt"

	"github.com/quizhive/proctor-backend/internal/model"
)

// QuestionStatus is the palette color of one question in the navigator.
type QuestionStatus string

const (
	StatusCurrent    QuestionStatus = "current"
	StatusBookmarked QuestionStatus = "bookmarked"
	StatusAnswered   QuestionStatus = "answered"
	StatusVisited    QuestionStatus = "visited"
	StatusUnanswered QuestionStatus = "unanswered"
)

// PaletteEntry pairs a question with its navigator status.
type PaletteEntry struct {
	QuestionID string         `json:"question_id"`
	Status     QuestionStatus `json:"status"`
}

// FullscreenWarning is the transient banner shown after a below-threshold
// fullscreen exit. It stays up until the client acknowledges it.
type FullscreenWarning struct {
	Count int `json:"count"`
}

// StateView is the read-only projection the interface renders. It carries
// everything the client needs; the client holds no counting or threshold
// logic of its own.
type StateView struct {
	Phase               model.Phase          `json:"phase"`
	Questions           []model.QuizQuestion `json:"questions"`
	CurrentIndex        int                  `json:"current_index"`
	Answers             map[string]string    `json:"answers"`
	Bookmarked          map[string]bool      `json:"bookmarked"`
	Visited             map[string]bool      `json:"visited"`
	Palette             []PaletteEntry       `json:"palette"`
	TimeRemaining       int                  `json:"time_remaining_seconds"`
	Clock               string               `json:"clock"`
	TabSwitchViolations int                  `json:"tab_switch_violations"`
	FullscreenExitCount int                  `json:"fullscreen_exit_count"`
	FullscreenWarning   *FullscreenWarning   `json:"fullscreen_warning,omitempty"`
	ShowSubmitWarning   bool                 `json:"show_submit_warning"`
	Terminated          bool                 `json:"terminated"`
	TerminationReason   string               `json:"termination_reason,omitempty"`
	LastError           string               `json:"last_error,omitempty"`
}

// View builds a snapshot of the controller state for rendering. Maps are
// copied so the caller can never mutate controller internals.
func (c *Controller) View() StateView {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := StateView{
		Phase:               c.phase,
		Questions:           c.questions,
		CurrentIndex:        c.currentIndex,
		Answers:             make(map[string]string, len(c.answers)),
		Bookmarked:          make(map[string]bool, len(c.bookmarked)),
		Visited:             make(map[string]bool, len(c.visited)),
		TimeRemaining:       c.timeRemaining,
		Clock:               FormatClock(c.timeRemaining),
		TabSwitchViolations: c.tabSwitches,
		FullscreenExitCount: c.fullscreenExits,
		ShowSubmitWarning:   c.showSubmitWarning,
		Terminated:          c.terminated,
		TerminationReason:   c.terminationReason,
		LastError:           c.lastErr,
	}
	for k, v := range c.answers {
		view.Answers[k] = v
	}
	for k, v := range c.bookmarked {
		view.Bookmarked[k] = v
	}
	for k, v := range c.visited {
		view.Visited[k] = v
	}
	if c.fullscreenWarning > 0 {
		view.FullscreenWarning = &FullscreenWarning{Count: c.fullscreenWarning}
	}

	view.Palette = make([]PaletteEntry, len(c.questions))
	for i, q := range c.questions {
		view.Palette[i] = PaletteEntry{
			QuestionID: q.ID,
			Status:     c.paletteStatusLocked(i, q.ID),
		}
	}
	return view
}

// paletteStatusLocked resolves the navigator color for one question.
// Precedence: current, bookmarked, answered, visited, unanswered.
func (c *Controller) paletteStatusLocked(index int, questionID string) QuestionStatus {
	switch {
	case index == c.currentIndex:
		return StatusCurrent
	case c.bookmarked[questionID]:
		return StatusBookmarked
	case c.answers[questionID] != Unanswered:
		return StatusAnswered
	case c.visited[questionID]:
		return StatusVisited
	default:
		return StatusUnanswered
	}
}

// FormatClock renders seconds as MM:SS. Minutes can exceed two digits for
// budgets over an hour and then simply widen.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
