package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelectOption   Action = "select_option"
	ActionToggleBookmark Action = "toggle_bookmark"
	ActionNavigate       Action = "navigate"
	ActionNext           Action = "next"
	ActionPrevious       Action = "previous"
	ActionSubmit         Action = "submit"
	ActionCancelSubmit   Action = "cancel_submit"
	ActionConfirmSubmit  Action = "confirm_submit"
	ActionAckFullscreen  Action = "ack_fullscreen"
	ActionTabHidden      Action = "tab_hidden"
	ActionFullscreenExit Action = "fullscreen_exit"
	ActionPing           Action = "ping"
)

// RequestPayload is the single client frame shape. Fields are used per
// action; unused ones are ignored.
type RequestPayload struct {
	Action Action `json:"action"`
	// QuestionID for select_option / toggle_bookmark.
	QuestionID string `json:"question_id,omitempty"`
	// Option for select_option.
	Option string `json:"option,omitempty"`
	// Index for navigate.
	Index int `json:"index"`
	// Force for submit.
	Force bool `json:"force"`
	// Payload carries opaque client context for violation frames
	// (tab_hidden / fullscreen_exit), persisted to the audit trail.
	Payload string `json:"payload,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState      Event = "state"
	EventWarning    Event = "warning"
	EventSubmitted  Event = "submitted"
	EventTerminated Event = "terminated"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

// StateFrame wraps the controller's StateView for transport.
type StateFrame struct {
	Event Event       `json:"event"`
	State interface{} `json:"state"`
}

// WarningFrame announces a below-threshold fullscreen exit. The count lets
// the client phrase "warning 2 of 2" without holding the threshold itself.
type WarningFrame struct {
	Event Event `json:"event"`
	Count int   `json:"count"`
}

// SubmittedFrame announces a landed submission with the graded payload.
type SubmittedFrame struct {
	Event             Event           `json:"event"`
	Result            json.RawMessage `json:"result"`
	TerminationReason string          `json:"termination_reason,omitempty"`
}

// ErrorResponse reports a rejected frame.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Event Event `json:"event"`
}
