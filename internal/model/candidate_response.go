package model

import (
	"time"

	"github.com/google/uuid"
)

// CandidateResponse holds one candidate's answer to one question.
// Unique per (session, question); writes are upserts, last write wins.
type CandidateResponse struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	QuestionID uuid.UUID `json:"question_id"`
	Response   string    `json:"response"`
	FilePath   *string   `json:"file_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReviewedResponse is a response joined with its question for the admin
// review view. Correct is set only for multiple-choice questions.
type ReviewedResponse struct {
	QuestionID    uuid.UUID    `json:"question_id"`
	QuestionText  string       `json:"question_text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectOption *int         `json:"correct_option,omitempty"`
	OrderNum      int          `json:"order_num"`
	Response      *string      `json:"response,omitempty"`
	FilePath      *string      `json:"file_path,omitempty"`
	Correct       *bool        `json:"correct,omitempty"`
}
