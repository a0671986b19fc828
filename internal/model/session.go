package model

import (
	"time"

	"github.com/google/uuid"
)

// Phase enumerates the lifecycle states of a proctored session.
type Phase string

const (
	PhaseLoading       Phase = "LOADING"
	PhaseActive        Phase = "ACTIVE"
	PhaseSubmitWarning Phase = "SUBMIT_WARNING"
	PhaseTerminated    Phase = "TERMINATED"
	PhaseSubmitting    Phase = "SUBMITTING"
	PhaseSubmitted     Phase = "SUBMITTED"
	PhaseFailed        Phase = "FAILED"
)

// Terminal reports whether no further intents can change the session.
// TERMINATED is not terminal in this sense: its forced submission may still
// be retried until it lands.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseFailed
}

// ViolationKind identifies the environmental signal that was detected.
type ViolationKind string

const (
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
)

// Violation is one recorded integrity event, persisted for proctor review.
type Violation struct {
	ID         uuid.UUID     `json:"id"`
	SessionID  string        `json:"session_id"`
	Kind       ViolationKind `json:"kind"`
	Ordinal    int           `json:"ordinal"`
	Payload    string        `json:"payload,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// AnsweredQuestion is one entry of the submission body. Unanswered questions
// are filtered out before the request is built.
type AnsweredQuestion struct {
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
}

// SubmitResult is the graded payload returned by the quiz backend. The raw
// body is kept verbatim so the results screen renders whatever the backend
// decided to grade.
type SubmitResult struct {
	SessionID         string    `json:"session_id"`
	Raw               []byte    `json:"raw"`
	TerminationReason string    `json:"termination_reason,omitempty"`
	SubmittedAt       time.Time `json:"submitted_at"`
}
