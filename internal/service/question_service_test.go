package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skillproof/skillproof-backend/internal/model"
)

type questionFixture struct {
	svc      *QuestionService
	tests    *stubTestStore
	sessions *stubSessionStore
	test     *model.Test
}

func newQuestionFixture(t *testing.T) *questionFixture {
	t.Helper()
	tests := newStubTestStore()
	sessions := newStubSessionStore()
	questions := newStubQuestionStore()

	testModel := &model.Test{
		ID:              uuid.New(),
		AdminID:         1,
		Name:            "Logic",
		DurationMinutes: 20,
		MaterialType:    model.MaterialTypeLink,
		MaterialRef:     "https://example.com",
		Status:          model.TestStatusDraft,
	}
	tests.add(testModel)

	return &questionFixture{
		svc:      NewQuestionService(questions, tests, sessions),
		tests:    tests,
		sessions: sessions,
		test:     testModel,
	}
}

func TestAddMultipleChoiceValidatesShape(t *testing.T) {
	f := newQuestionFixture(t)
	ctx := context.Background()
	one := 1
	five := 5

	cases := []struct {
		name string
		req  model.AddQuestionRequest
		ok   bool
	}{
		{"valid", model.AddQuestionRequest{QuestionText: "q", Type: "MULTIPLE_CHOICE", Options: []string{"a", "b"}, CorrectOption: &one}, true},
		{"one option", model.AddQuestionRequest{QuestionText: "q", Type: "MULTIPLE_CHOICE", Options: []string{"a"}, CorrectOption: &one}, false},
		{"no correct", model.AddQuestionRequest{QuestionText: "q", Type: "MULTIPLE_CHOICE", Options: []string{"a", "b"}}, false},
		{"correct out of range", model.AddQuestionRequest{QuestionText: "q", Type: "MULTIPLE_CHOICE", Options: []string{"a", "b"}, CorrectOption: &five}, false},
		{"text with options", model.AddQuestionRequest{QuestionText: "q", Type: "TEXT_ANSWER", Options: []string{"a"}}, false},
		{"text plain", model.AddQuestionRequest{QuestionText: "q", Type: "TEXT_ANSWER"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Add(ctx, 1, f.test.ID, tc.req)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidQuestion) {
				t.Fatalf("expected ErrInvalidQuestion, got %v", err)
			}
		})
	}
}

func TestAddAssignsNextOrder(t *testing.T) {
	f := newQuestionFixture(t)
	ctx := context.Background()
	one := 1

	first, err := f.svc.Add(ctx, 1, f.test.ID, model.AddQuestionRequest{
		QuestionText: "first", Type: "MULTIPLE_CHOICE", Options: []string{"a", "b"}, CorrectOption: &one,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := f.svc.Add(ctx, 1, f.test.ID, model.AddQuestionRequest{
		QuestionText: "second", Type: "TEXT_ANSWER",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if second.OrderNum <= first.OrderNum {
		t.Fatalf("order not increasing: %d then %d", first.OrderNum, second.OrderNum)
	}
}

func TestQuestionEditsFrozenAfterStart(t *testing.T) {
	f := newQuestionFixture(t)
	ctx := context.Background()
	one := 1

	q, err := f.svc.Add(ctx, 1, f.test.ID, model.AddQuestionRequest{
		QuestionText: "q", Type: "MULTIPLE_CHOICE", Options: []string{"a", "b"}, CorrectOption: &one,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	now := time.Now()
	f.sessions.add(&model.TestSession{
		ID:             uuid.New(),
		TestID:         f.test.ID,
		CandidateEmail: "jo@example.com",
		AccessToken:    "tok",
		Status:         model.SessionStatusStarted,
		StartedAt:      &now,
	})

	if _, err := f.svc.Update(ctx, 1, q.ID, model.UpdateQuestionRequest{QuestionText: "edited"}); !errors.Is(err, ErrTestFrozen) {
		t.Fatalf("expected ErrTestFrozen on update, got %v", err)
	}
	if err := f.svc.Delete(ctx, 1, q.ID); !errors.Is(err, ErrTestFrozen) {
		t.Fatalf("expected ErrTestFrozen on delete, got %v", err)
	}
	// Reading stays open.
	if _, err := f.svc.List(ctx, 1, f.test.ID); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestQuestionOwnershipEnforced(t *testing.T) {
	f := newQuestionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Add(ctx, 2, f.test.ID, model.AddQuestionRequest{
		QuestionText: "q", Type: "TEXT_ANSWER",
	}); !errors.Is(err, ErrNotTestOwner) {
		t.Fatalf("expected ErrNotTestOwner, got %v", err)
	}
}
