package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skillproof/skillproof-backend/internal/config"
	"github.com/skillproof/skillproof-backend/internal/model"
)

func testMaterialService() *MaterialService {
	return NewMaterialService(&config.Config{
		MaterialSigningSecret: "test-secret",
		MaterialDir:           "./materials",
		UploadDir:             "./uploads",
		MaxUploadBytes:        10 << 20,
		SignedURLGrace:        5 * time.Minute,
	})
}

type sessionFixture struct {
	svc       *SessionService
	sessions  *stubSessionStore
	tests     *stubTestStore
	questions *stubQuestionStore
	cache     *stubCache
	now       time.Time

	test     *model.Test
	session  *model.TestSession
	question *model.Question
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	sessions := newStubSessionStore()
	tests := newStubTestStore()
	questions := newStubQuestionStore()
	cache := newStubCache()

	correct := 1
	f := &sessionFixture{
		sessions:  sessions,
		tests:     tests,
		questions: questions,
		cache:     cache,
		now:       time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	f.test = &model.Test{
		ID:              uuid.New(),
		AdminID:         1,
		Name:            "Reading Comprehension",
		DurationMinutes: 30,
		MaterialType:    model.MaterialTypeLink,
		MaterialRef:     "https://example.com/brief.pdf",
		Status:          model.TestStatusActive,
		CandidateEmails: []string{"jo@example.com"},
	}
	tests.add(f.test)

	f.question = &model.Question{
		ID:           uuid.New(),
		TestID:       f.test.ID,
		QuestionText: "Pick one",
		Type:         model.QuestionTypeMultipleChoice,
		Options:      []string{"a", "b", "c"},
		CorrectOption: &correct,
		OrderNum:     1,
	}
	questions.add(f.question)

	f.session = &model.TestSession{
		ID:             uuid.New(),
		TestID:         f.test.ID,
		CandidateEmail: "jo@example.com",
		AccessToken:    "tok-123",
		Status:         model.SessionStatusNotStarted,
		CreatedAt:      f.now,
	}
	sessions.add(f.session)

	f.svc = NewSessionService(sessions, tests, questions, testMaterialService(), cache)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestResolveEmailMismatch(t *testing.T) {
	f := newSessionFixture(t)

	_, _, err := f.svc.Resolve(context.Background(), "tok-123", "intruder@example.com")
	if !errors.Is(err, ErrEmailMismatch) {
		t.Fatalf("expected ErrEmailMismatch, got %v", err)
	}
}

func TestResolveEmailCaseInsensitive(t *testing.T) {
	f := newSessionFixture(t)

	sess, _, err := f.svc.Resolve(context.Background(), "tok-123", "  JO@Example.COM ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sess.ID != f.session.ID {
		t.Fatalf("resolved wrong session")
	}
}

func TestResolveUnknownToken(t *testing.T) {
	f := newSessionFixture(t)

	_, _, err := f.svc.Resolve(context.Background(), "nope", "jo@example.com")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestResolveInactiveTestBlocksOpenSession(t *testing.T) {
	f := newSessionFixture(t)
	f.tests.tests[f.test.ID].Status = model.TestStatusInactive

	_, _, err := f.svc.Resolve(context.Background(), "tok-123", "jo@example.com")
	if !errors.Is(err, ErrTestNotActive) {
		t.Fatalf("expected ErrTestNotActive, got %v", err)
	}
}

func TestResolveCompletedSessionSurvivesDeactivation(t *testing.T) {
	f := newSessionFixture(t)
	stored := f.sessions.sessions[f.session.ID]
	at := f.now.Add(-time.Hour)
	stored.StartedAt = &at
	stored.SubmittedAt = &at
	stored.Status = model.SessionStatusCompleted
	f.tests.tests[f.test.ID].Status = model.TestStatusInactive

	sess, _, err := f.svc.Resolve(context.Background(), "tok-123", "jo@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sess.SubmittedAt == nil {
		t.Fatalf("expected completed session")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, "tok-123", "jo@example.com")
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if first.Status != model.SessionStatusStarted {
		t.Fatalf("status = %s, want STARTED", first.Status)
	}
	if first.RemainingSeconds != 30*60 {
		t.Fatalf("remaining = %d, want %d", first.RemainingSeconds, 30*60)
	}

	// Ten minutes later a refresh must keep the original clock.
	f.now = f.now.Add(10 * time.Minute)
	second, err := f.svc.Start(ctx, "tok-123", "jo@example.com")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.RemainingSeconds != 20*60 {
		t.Fatalf("remaining after refresh = %d, want %d", second.RemainingSeconds, 20*60)
	}
}

func TestStartRegistersDeadline(t *testing.T) {
	f := newSessionFixture(t)

	if _, err := f.svc.Start(context.Background(), "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}

	dl, ok := f.cache.deadlines[f.session.ID.String()]
	if !ok {
		t.Fatalf("deadline not registered")
	}
	want := f.now.Add(30 * time.Minute)
	if !dl.Equal(want) {
		t.Fatalf("deadline = %v, want %v", dl, want)
	}
}

func TestStateHidesQuestionsBeforeStart(t *testing.T) {
	f := newSessionFixture(t)

	state, err := f.svc.State(context.Background(), "tok-123", "jo@example.com")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Questions) != 0 || state.MaterialURL != "" {
		t.Fatalf("pre-start state leaked questions or material")
	}
}

func TestStateStripsCorrectOption(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err := f.svc.State(ctx, "tok-123", "jo@example.com")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(state.Questions))
	}
	if state.MaterialURL != f.test.MaterialRef {
		t.Fatalf("material url = %q, want link passthrough", state.MaterialURL)
	}
}

func TestAutosaveRejectsOutOfRangeOption(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := f.svc.Autosave(ctx, "tok-123", "jo@example.com", model.AutosaveAnswerRequest{
		Email:      "jo@example.com",
		QuestionID: f.question.ID,
		Response:   "7",
	})
	if !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}
}

func TestAutosaveCachesAndQueues(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := f.svc.Autosave(ctx, "tok-123", "jo@example.com", model.AutosaveAnswerRequest{
		Email:      "jo@example.com",
		QuestionID: f.question.ID,
		Response:   "2",
	})
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}

	saved := f.cache.answers[f.session.ID.String()]
	if saved[f.question.ID.String()] != "2" {
		t.Fatalf("answer not cached: %v", saved)
	}
	if len(f.cache.queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(f.cache.queued))
	}
}

func TestSubmitFirstWriterWins(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.now = f.now.Add(5 * time.Minute)

	first, err := f.svc.Submit(ctx, "tok-123", model.SubmitSessionRequest{
		Email:   "jo@example.com",
		Answers: []model.SubmitAnswer{{QuestionID: f.question.ID, Response: "1"}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.SubmittedAt == nil || *first.TimeTakenSeconds != 5*60 {
		t.Fatalf("submission not recorded correctly: %+v", first)
	}

	f.now = f.now.Add(time.Minute)
	second, err := f.svc.Submit(ctx, "tok-123", model.SubmitSessionRequest{Email: "jo@example.com"})
	if err != nil {
		t.Fatalf("repeat submit: %v", err)
	}
	if !second.SubmittedAt.Equal(*first.SubmittedAt) {
		t.Fatalf("repeat submit moved submitted_at")
	}
	if f.sessions.completeCalls != 1 {
		t.Fatalf("complete calls = %d, want 1", f.sessions.completeCalls)
	}
}

func TestSubmitMergesAutosavedAnswers(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	other := &model.Question{
		ID:           uuid.New(),
		TestID:       f.test.ID,
		QuestionText: "Explain",
		Type:         model.QuestionTypeTextAnswer,
		OrderNum:     2,
	}
	f.questions.add(other)

	if _, err := f.svc.Start(ctx, "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Autosaved draft for the text question, then a final payload that only
	// carries the multiple choice answer.
	if err := f.svc.Autosave(ctx, "tok-123", "jo@example.com", model.AutosaveAnswerRequest{
		Email: "jo@example.com", QuestionID: other.ID, Response: "draft text",
	}); err != nil {
		t.Fatalf("autosave: %v", err)
	}

	if _, err := f.svc.Submit(ctx, "tok-123", model.SubmitSessionRequest{
		Email:   "jo@example.com",
		Answers: []model.SubmitAnswer{{QuestionID: f.question.ID, Response: "0"}},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := make(map[uuid.UUID]string)
	for _, a := range f.sessions.lastAnswers {
		got[a.QuestionID] = a.Response
	}
	if got[other.ID] != "draft text" {
		t.Fatalf("autosaved answer dropped: %v", got)
	}
	if got[f.question.ID] != "0" {
		t.Fatalf("explicit answer lost: %v", got)
	}
}

func TestSubmitCleansHotState(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Submit(ctx, "tok-123", model.SubmitSessionRequest{Email: "jo@example.com"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, ok := f.cache.deadlines[f.session.ID.String()]; ok {
		t.Fatalf("deadline not removed")
	}
	if f.cache.answers[f.session.ID.String()] != nil {
		t.Fatalf("answers not cleared")
	}
}

func TestAutoCompleteUsesAutosavedAnswers(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.svc.Autosave(ctx, "tok-123", "jo@example.com", model.AutosaveAnswerRequest{
		Email: "jo@example.com", QuestionID: f.question.ID, Response: "1",
	}); err != nil {
		t.Fatalf("autosave: %v", err)
	}

	f.now = f.now.Add(31 * time.Minute)
	if err := f.svc.AutoComplete(ctx, f.session.ID); err != nil {
		t.Fatalf("auto-complete: %v", err)
	}

	sess := f.sessions.sessions[f.session.ID]
	if sess.SubmittedAt == nil {
		t.Fatalf("session not completed")
	}
	if len(f.sessions.lastAnswers) != 1 || f.sessions.lastAnswers[0].Response != "1" {
		t.Fatalf("autosaved answers not persisted: %v", f.sessions.lastAnswers)
	}
}

func TestAutoCompleteIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "tok-123", "jo@example.com"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Submit(ctx, "tok-123", model.SubmitSessionRequest{Email: "jo@example.com"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.svc.AutoComplete(ctx, f.session.ID); err != nil {
		t.Fatalf("auto-complete on completed session: %v", err)
	}
	if f.sessions.completeCalls != 1 {
		t.Fatalf("complete calls = %d, want 1", f.sessions.completeCalls)
	}
}

func TestRemainingSecondsClampsAtZero(t *testing.T) {
	f := newSessionFixture(t)

	started := f.now.Add(-2 * time.Hour)
	sess := &model.TestSession{StartedAt: &started}
	if got := f.svc.RemainingSeconds(sess, f.test); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}
}
