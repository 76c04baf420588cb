package websocket

// Actions (client to server).

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest saves a single answer mid-attempt.
type AutosaveRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Response   string `json:"response"`
}

// SubmitRequest finishes the attempt with the final answer set.
type SubmitRequest struct {
	Action  Action         `json:"action"`
	Answers []SubmitAnswer `json:"answers"`
}

type SubmitAnswer struct {
	QuestionID string `json:"question_id"`
	Response   string `json:"response"`
}

// Events (server to client).

type Event string

const (
	EventTick      Event = "tick"
	EventSaved     Event = "saved"
	EventCompleted Event = "completed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// TickEvent carries the server-derived remaining seconds, pushed once per
// second for the life of the connection.
type TickEvent struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type SavedEvent struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

// CompletedEvent announces the submission was recorded, whether the
// candidate submitted or the deadline did.
type CompletedEvent struct {
	Event            Event  `json:"event"`
	SubmittedAt      string `json:"submitted_at"`
	TimeTakenSeconds int    `json:"time_taken_seconds"`
	Auto             bool   `json:"auto"`
}

type ErrorEvent struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
