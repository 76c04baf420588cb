package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/skillproof/skillproof-backend/internal/model"
)

type questionStore interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	Create(ctx context.Context, q *model.Question) error
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// QuestionService manages the questions of a test. Question edits obey the
// same freeze rule as structural test edits: no changes once any candidate
// has started.
type QuestionService struct {
	questions questionStore
	tests     testStore
	sessions  testSessionStore
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questions questionStore, tests testStore, sessions testSessionStore) *QuestionService {
	return &QuestionService{questions: questions, tests: tests, sessions: sessions}
}

// List returns a test's questions in authored order, including correct
// options. Admin-only; candidates get the stripped view.
func (s *QuestionService) List(ctx context.Context, adminID int, testID uuid.UUID) ([]model.Question, error) {
	if _, err := s.ownedUnfrozen(ctx, adminID, testID, false); err != nil {
		return nil, err
	}
	return s.questions.ListByTest(ctx, testID)
}

// Add appends a question to a test.
func (s *QuestionService) Add(ctx context.Context, adminID int, testID uuid.UUID, req model.AddQuestionRequest) (*model.Question, error) {
	if _, err := s.ownedUnfrozen(ctx, adminID, testID, true); err != nil {
		return nil, err
	}

	q := &model.Question{
		ID:            uuid.New(),
		TestID:        testID,
		QuestionText:  req.QuestionText,
		Type:          model.QuestionType(req.Type),
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		OrderNum:      req.OrderNum,
	}
	if q.OrderNum == 0 {
		existing, err := s.questions.ListByTest(ctx, testID)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		q.OrderNum = nextOrderNum(existing)
	}
	if err := validateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// Update edits an existing question.
func (s *QuestionService) Update(ctx context.Context, adminID int, questionID uuid.UUID, req model.UpdateQuestionRequest) (*model.Question, error) {
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, ErrQuestionNotFound
	}
	if _, err := s.ownedUnfrozen(ctx, adminID, q.TestID, true); err != nil {
		return nil, err
	}

	if req.QuestionText != "" {
		q.QuestionText = req.QuestionText
	}
	if req.Type != "" {
		q.Type = model.QuestionType(req.Type)
	}
	if req.Options != nil {
		q.Options = req.Options
	}
	if req.CorrectOption != nil {
		q.CorrectOption = req.CorrectOption
	}
	if req.OrderNum != nil {
		q.OrderNum = *req.OrderNum
	}
	if q.Type == model.QuestionTypeTextAnswer {
		q.Options = nil
		q.CorrectOption = nil
	}
	if err := validateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.questions.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

// Delete removes a question. Recorded responses to it go with it.
func (s *QuestionService) Delete(ctx context.Context, adminID int, questionID uuid.UUID) error {
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return ErrQuestionNotFound
	}
	if _, err := s.ownedUnfrozen(ctx, adminID, q.TestID, true); err != nil {
		return err
	}
	if err := s.questions.Delete(ctx, questionID); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// ownedUnfrozen loads the test, checks ownership, and when mutating also
// checks the test is not paused and no candidate has started yet.
func (s *QuestionService) ownedUnfrozen(ctx context.Context, adminID int, testID uuid.UUID, mutating bool) (*model.Test, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, ErrTestNotFound
	}
	if t.AdminID != adminID {
		return nil, ErrNotTestOwner
	}
	if mutating {
		if t.Status == model.TestStatusInactive {
			return nil, ErrTestFrozen
		}
		sessions, err := s.sessions.ListByTest(ctx, testID)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		for i := range sessions {
			if sessions[i].StartedAt != nil {
				return nil, ErrTestFrozen
			}
		}
	}
	return t, nil
}

// validateQuestion enforces per-type shape: multiple choice needs at least
// two options and an in-range correct option, text answers carry neither.
func validateQuestion(q *model.Question) error {
	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: multiple choice needs at least two options", ErrInvalidQuestion)
		}
		if q.CorrectOption == nil {
			return fmt.Errorf("%w: multiple choice needs a correct option", ErrInvalidQuestion)
		}
		if *q.CorrectOption < 0 || *q.CorrectOption >= len(q.Options) {
			return fmt.Errorf("%w: correct option %d out of range", ErrInvalidQuestion, *q.CorrectOption)
		}
	case model.QuestionTypeTextAnswer:
		if len(q.Options) > 0 || q.CorrectOption != nil {
			return fmt.Errorf("%w: text answers take no options", ErrInvalidQuestion)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, q.Type)
	}
	return nil
}

func nextOrderNum(questions []model.Question) int {
	max := 0
	for i := range questions {
		if questions[i].OrderNum > max {
			max = questions[i].OrderNum
		}
	}
	return max + 1
}
