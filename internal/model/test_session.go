package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates candidate session states.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "NOT_STARTED"
	SessionStatusStarted    SessionStatus = "STARTED"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// TestSession represents one candidate's single attempt at one test.
//
// The access token is the only capability a candidate holds; possession of
// the token is authorization. started_at and submitted_at are each set at
// most once. time_taken_seconds = floor(submitted_at - started_at), never
// negative.
type TestSession struct {
	ID               uuid.UUID     `json:"id"`
	TestID           uuid.UUID     `json:"test_id"`
	CandidateEmail   string        `json:"candidate_email"`
	AccessToken      string        `json:"access_token,omitempty"`
	Status           SessionStatus `json:"status"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	TimeTakenSeconds *int          `json:"time_taken_seconds,omitempty"`
	UploadPath       *string       `json:"upload_path,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// ForCandidate returns the session without its access token, for payloads
// that may end up logged or cached on the candidate side.
func (s TestSession) ForCandidate() TestSession {
	s.AccessToken = ""
	return s
}

// ResolveSessionRequest gates candidate entry: the claimed email must match
// the session's assigned email (case-insensitively, after trimming).
type ResolveSessionRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SubmitAnswer is one answer inside a submission.
type SubmitAnswer struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Response   string    `json:"response"`
}

// SubmitSessionRequest finalizes a candidate's attempt.
type SubmitSessionRequest struct {
	Email   string         `json:"email" binding:"required,email"`
	Answers []SubmitAnswer `json:"answers" binding:"omitempty,dive"`
}

// AutosaveAnswerRequest upserts a single in-progress answer.
type AutosaveAnswerRequest struct {
	Email      string    `json:"email" binding:"required,email"`
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Response   string    `json:"response"`
}
