package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTextAnswer     QuestionType = "TEXT_ANSWER"
)

// Question represents a single test question.
//
// For multiple choice the correct answer is stored canonically as an index
// into Options, validated in range at authoring time.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	TestID       uuid.UUID    `json:"test_id"`
	QuestionText string       `json:"question_text"`
	Type         QuestionType `json:"type"`
	Options      []string     `json:"options,omitempty"`
	CorrectOption *int        `json:"correct_option,omitempty"`
	OrderNum     int          `json:"order_num"`
}

// QuestionForCandidate is a question stripped of the correct answer.
type QuestionForCandidate struct {
	ID           uuid.UUID    `json:"id"`
	QuestionText string       `json:"question_text"`
	Type         QuestionType `json:"type"`
	Options      []string     `json:"options,omitempty"`
	OrderNum     int          `json:"order_num"`
}

// ForCandidate strips authoring-only fields from a question.
func (q *Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		Type:         q.Type,
		Options:      q.Options,
		OrderNum:     q.OrderNum,
	}
}

// AddQuestionRequest is the payload for adding a question to a test.
type AddQuestionRequest struct {
	QuestionText  string   `json:"question_text" binding:"required,min=1,max=2000"`
	Type          string   `json:"type" binding:"required,oneof=MULTIPLE_CHOICE TEXT_ANSWER"`
	Options       []string `json:"options" binding:"omitempty,dive,min=1,max=500"`
	CorrectOption *int     `json:"correct_option" binding:"omitempty,min=0"`
	OrderNum      int      `json:"order_num" binding:"min=0"`
}

// UpdateQuestionRequest is the payload for editing an existing question.
type UpdateQuestionRequest struct {
	QuestionText  string   `json:"question_text" binding:"omitempty,min=1,max=2000"`
	Type          string   `json:"type" binding:"omitempty,oneof=MULTIPLE_CHOICE TEXT_ANSWER"`
	Options       []string `json:"options" binding:"omitempty,dive,min=1,max=500"`
	CorrectOption *int     `json:"correct_option" binding:"omitempty,min=0"`
	OrderNum      *int     `json:"order_num" binding:"omitempty,min=0"`
}
