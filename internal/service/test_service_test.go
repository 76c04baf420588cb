package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skillproof/skillproof-backend/internal/model"
)

type testServiceFixture struct {
	svc      *TestService
	tests    *stubTestStore
	sessions *stubSessionStore
	reviews  *stubReviewStore
}

func newTestServiceFixture(t *testing.T) *testServiceFixture {
	t.Helper()
	tests := newStubTestStore()
	sessions := newStubSessionStore()
	questions := newStubQuestionStore()
	reviews := &stubReviewStore{}
	return &testServiceFixture{
		svc:      NewTestService(tests, sessions, questions, reviews, testMaterialService()),
		tests:    tests,
		sessions: sessions,
		reviews:  reviews,
	}
}

func validCreateRequest() model.CreateTestRequest {
	return model.CreateTestRequest{
		Name:            "Backend Exercise",
		DurationMinutes: 60,
		MaterialType:    "LINK",
		MaterialRef:     "https://example.com/brief",
		CandidateEmails: []string{"A@Example.com", "b@example.com", "a@example.com"},
	}
}

func TestCreateDraftHasNoSessions(t *testing.T) {
	f := newTestServiceFixture(t)

	created, err := f.svc.Create(context.Background(), 1, validCreateRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != model.TestStatusDraft {
		t.Fatalf("status = %s, want DRAFT", created.Status)
	}
	if len(f.sessions.sessions) != 0 {
		t.Fatalf("draft created sessions")
	}
}

func TestCreateNormalizesEmails(t *testing.T) {
	f := newTestServiceFixture(t)

	created, err := f.svc.Create(context.Background(), 1, validCreateRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"a@example.com", "b@example.com"}
	if len(created.CandidateEmails) != len(want) {
		t.Fatalf("emails = %v, want %v", created.CandidateEmails, want)
	}
	for i := range want {
		if created.CandidateEmails[i] != want[i] {
			t.Fatalf("emails = %v, want %v", created.CandidateEmails, want)
		}
	}
}

func TestCreateWithActivateMaterializesSessions(t *testing.T) {
	f := newTestServiceFixture(t)

	req := validCreateRequest()
	req.Activate = true
	created, err := f.svc.Create(context.Background(), 1, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != model.TestStatusActive {
		t.Fatalf("status = %s, want ACTIVE", created.Status)
	}
	sessions, _ := f.sessions.ListByTest(context.Background(), created.ID)
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	seen := make(map[string]bool)
	for _, s := range sessions {
		if s.AccessToken == "" {
			t.Fatalf("session without access token")
		}
		if seen[s.AccessToken] {
			t.Fatalf("duplicate access token")
		}
		seen[s.AccessToken] = true
	}
}

func TestActivatePreservesExistingSessions(t *testing.T) {
	f := newTestServiceFixture(t)
	ctx := context.Background()

	req := validCreateRequest()
	req.Activate = true
	created, err := f.svc.Create(ctx, 1, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	before, _ := f.sessions.ListByTest(ctx, created.ID)
	tokens := make(map[string]string)
	for _, s := range before {
		tokens[s.CandidateEmail] = s.AccessToken
	}

	// Pause and reactivate, then invite one more candidate.
	if _, err := f.svc.Deactivate(ctx, 1, created.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.svc.Update(ctx, 1, created.ID, model.UpdateTestRequest{
		CandidateEmails: []string{"a@example.com", "b@example.com", "c@example.com"},
	}); !errors.Is(err, ErrTestFrozen) {
		t.Fatalf("update while inactive: err = %v, want ErrTestFrozen", err)
	}
	if _, err := f.svc.Activate(ctx, 1, created.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := f.svc.Update(ctx, 1, created.ID, model.UpdateTestRequest{
		CandidateEmails: []string{"a@example.com", "b@example.com", "c@example.com"},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, _ := f.sessions.ListByTest(ctx, created.ID)
	if len(after) != 3 {
		t.Fatalf("sessions = %d, want 3", len(after))
	}
	for _, s := range after {
		if old, ok := tokens[s.CandidateEmail]; ok && old != s.AccessToken {
			t.Fatalf("token for %s rotated on re-activation", s.CandidateEmail)
		}
	}
}

func TestUpdateStructuralFieldsFrozenAfterStart(t *testing.T) {
	f := newTestServiceFixture(t)
	ctx := context.Background()

	req := validCreateRequest()
	req.Activate = true
	created, err := f.svc.Create(ctx, 1, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// One candidate starts.
	sessions, _ := f.sessions.ListByTest(ctx, created.ID)
	now := time.Now()
	f.sessions.sessions[sessions[0].ID].StartedAt = &now

	_, err = f.svc.Update(ctx, 1, created.ID, model.UpdateTestRequest{DurationMinutes: 90})
	if !errors.Is(err, ErrTestFrozen) {
		t.Fatalf("expected ErrTestFrozen, got %v", err)
	}

	// Non-structural edits stay allowed.
	if _, err := f.svc.Update(ctx, 1, created.ID, model.UpdateTestRequest{Name: "Renamed"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	f := newTestServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, 1, validCreateRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Get(ctx, 2, created.ID); !errors.Is(err, ErrNotTestOwner) {
		t.Fatalf("expected ErrNotTestOwner, got %v", err)
	}
	if _, err := f.svc.Activate(ctx, 2, created.ID); !errors.Is(err, ErrNotTestOwner) {
		t.Fatalf("expected ErrNotTestOwner, got %v", err)
	}
}

func TestCreateRejectsBadMaterialLink(t *testing.T) {
	f := newTestServiceFixture(t)

	req := validCreateRequest()
	req.MaterialRef = "notaurl"
	if _, err := f.svc.Create(context.Background(), 1, req); !errors.Is(err, ErrMaterialUnavailable) {
		t.Fatalf("expected ErrMaterialUnavailable, got %v", err)
	}
}

func TestReviewGradesMultipleChoice(t *testing.T) {
	f := newTestServiceFixture(t)
	ctx := context.Background()

	req := validCreateRequest()
	req.Activate = true
	created, err := f.svc.Create(ctx, 1, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sessions, _ := f.sessions.ListByTest(ctx, created.ID)
	sessID := sessions[0].ID

	correct := 1
	right := "1"
	wrong := "0"
	text := "free form"
	f.reviews.rows = []model.ReviewedResponse{
		{QuestionID: uuid.New(), Type: model.QuestionTypeMultipleChoice, CorrectOption: &correct, Response: &right},
		{QuestionID: uuid.New(), Type: model.QuestionTypeMultipleChoice, CorrectOption: &correct, Response: &wrong},
		{QuestionID: uuid.New(), Type: model.QuestionTypeMultipleChoice, CorrectOption: &correct},
		{QuestionID: uuid.New(), Type: model.QuestionTypeTextAnswer, Response: &text},
	}

	review, err := f.svc.Review(ctx, 1, sessID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if review.AutoScored != 3 || review.AutoCorrect != 1 {
		t.Fatalf("scored/correct = %d/%d, want 3/1", review.AutoScored, review.AutoCorrect)
	}
	if review.AnsweredCount != 3 {
		t.Fatalf("answered = %d, want 3", review.AnsweredCount)
	}
	if review.Responses[0].Correct == nil || !*review.Responses[0].Correct {
		t.Fatalf("right answer not marked correct")
	}
	if review.Responses[3].Correct != nil {
		t.Fatalf("text answer must not be auto-graded")
	}
}
