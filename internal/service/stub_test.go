package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/skillproof/skillproof-backend/internal/model"
)

// In-memory stand-ins for the repository and cache interfaces. They model
// just enough semantics (first-submit-wins, conditional start) for the
// services under test.

type stubSessionStore struct {
	sessions map[uuid.UUID]*model.TestSession
	byToken  map[string]uuid.UUID

	completeCalls  int
	lastAnswers    []model.SubmitAnswer
	materializeLog [][]string
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{
		sessions: make(map[uuid.UUID]*model.TestSession),
		byToken:  make(map[string]uuid.UUID),
	}
}

func (s *stubSessionStore) add(sess *model.TestSession) {
	cp := *sess
	s.sessions[cp.ID] = &cp
	s.byToken[cp.AccessToken] = cp.ID
}

func (s *stubSessionStore) GetByAccessToken(_ context.Context, token string) (*model.TestSession, error) {
	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s.sessions[id]
	return &cp, nil
}

func (s *stubSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.TestSession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *stubSessionStore) Start(_ context.Context, id uuid.UUID, startedAt time.Time) (*model.TestSession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.StartedAt == nil && sess.SubmittedAt == nil {
		t := startedAt
		sess.StartedAt = &t
		sess.Status = model.SessionStatusStarted
	}
	cp := *sess
	return &cp, nil
}

func (s *stubSessionStore) Complete(_ context.Context, id uuid.UUID, answers []model.SubmitAnswer, submittedAt time.Time, uploadPath *string) (*model.TestSession, bool, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, ErrSessionNotFound
	}
	if sess.SubmittedAt != nil {
		cp := *sess
		return &cp, false, nil
	}
	s.completeCalls++
	s.lastAnswers = answers

	at := submittedAt
	if sess.StartedAt == nil {
		sess.StartedAt = &at
	}
	sess.SubmittedAt = &at
	sess.Status = model.SessionStatusCompleted
	taken := int(at.Sub(*sess.StartedAt).Seconds())
	if taken < 0 {
		taken = 0
	}
	sess.TimeTakenSeconds = &taken
	if uploadPath != nil {
		sess.UploadPath = uploadPath
	}
	cp := *sess
	return &cp, true, nil
}

func (s *stubSessionStore) SetUploadPath(_ context.Context, id uuid.UUID, path string) error {
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.SubmittedAt == nil {
		p := path
		sess.UploadPath = &p
	}
	return nil
}

func (s *stubSessionStore) Materialize(_ context.Context, testID uuid.UUID, emails, tokens []string) (int, error) {
	s.materializeLog = append(s.materializeLog, emails)
	created := 0
	for i, email := range emails {
		exists := false
		for _, sess := range s.sessions {
			if sess.TestID == testID && sess.CandidateEmail == email {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		sess := &model.TestSession{
			ID:             uuid.New(),
			TestID:         testID,
			CandidateEmail: email,
			AccessToken:    tokens[i],
			Status:         model.SessionStatusNotStarted,
			CreatedAt:      time.Now(),
		}
		s.sessions[sess.ID] = sess
		s.byToken[sess.AccessToken] = sess.ID
		created++
	}
	return created, nil
}

func (s *stubSessionStore) ListByTest(_ context.Context, testID uuid.UUID) ([]model.TestSession, error) {
	var out []model.TestSession
	for _, sess := range s.sessions {
		if sess.TestID == testID {
			out = append(out, *sess)
		}
	}
	return out, nil
}

type stubTestStore struct {
	tests map[uuid.UUID]*model.Test
}

func newStubTestStore() *stubTestStore {
	return &stubTestStore{tests: make(map[uuid.UUID]*model.Test)}
}

func (s *stubTestStore) add(t *model.Test) {
	cp := *t
	s.tests[cp.ID] = &cp
}

func (s *stubTestStore) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := s.tests[id]
	if !ok {
		return nil, ErrTestNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *stubTestStore) Create(_ context.Context, t *model.Test) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.add(t)
	return nil
}

func (s *stubTestStore) Update(_ context.Context, t *model.Test) error {
	t.UpdatedAt = time.Now()
	s.add(t)
	return nil
}

func (s *stubTestStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.TestStatus) error {
	t, ok := s.tests[id]
	if !ok {
		return ErrTestNotFound
	}
	t.Status = status
	return nil
}

func (s *stubTestStore) ListByAdminPaginated(_ context.Context, adminID, limit, offset int) ([]model.TestSummary, int, error) {
	var out []model.TestSummary
	for _, t := range s.tests {
		if t.AdminID == adminID {
			out = append(out, model.TestSummary{Test: *t})
		}
	}
	return out, len(out), nil
}

type stubQuestionStore struct {
	questions map[uuid.UUID]*model.Question
}

func newStubQuestionStore() *stubQuestionStore {
	return &stubQuestionStore{questions: make(map[uuid.UUID]*model.Question)}
}

func (s *stubQuestionStore) add(q *model.Question) {
	cp := *q
	s.questions[cp.ID] = &cp
}

func (s *stubQuestionStore) ListByTest(_ context.Context, testID uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	for _, q := range s.questions {
		if q.TestID == testID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (s *stubQuestionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	q, ok := s.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *stubQuestionStore) Create(_ context.Context, q *model.Question) error {
	s.add(q)
	return nil
}

func (s *stubQuestionStore) Update(_ context.Context, q *model.Question) error {
	s.add(q)
	return nil
}

func (s *stubQuestionStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.questions, id)
	return nil
}

type stubReviewStore struct {
	rows []model.ReviewedResponse
}

func (s *stubReviewStore) ListForReview(_ context.Context, _ uuid.UUID) ([]model.ReviewedResponse, error) {
	return s.rows, nil
}

type stubCache struct {
	starts    map[string]time.Time
	deadlines map[string]time.Time
	answers   map[string]map[string]string
	queued    []PersistAnswerJob
	events    []MonitorEvent
}

func newStubCache() *stubCache {
	return &stubCache{
		starts:    make(map[string]time.Time),
		deadlines: make(map[string]time.Time),
		answers:   make(map[string]map[string]string),
	}
}

func (c *stubCache) SetStart(_ context.Context, sessionID string, startedAt time.Time, _ time.Duration) error {
	c.starts[sessionID] = startedAt
	return nil
}

func (c *stubCache) GetStart(_ context.Context, sessionID string) (time.Time, bool, error) {
	t, ok := c.starts[sessionID]
	return t, ok, nil
}

func (c *stubCache) AddDeadline(_ context.Context, sessionID string, deadline time.Time) error {
	c.deadlines[sessionID] = deadline
	return nil
}

func (c *stubCache) RemoveDeadline(_ context.Context, sessionID string) error {
	delete(c.deadlines, sessionID)
	return nil
}

func (c *stubCache) DueDeadlines(_ context.Context, now time.Time) ([]string, error) {
	var due []string
	for id, dl := range c.deadlines {
		if !dl.After(now) {
			due = append(due, id)
		}
	}
	return due, nil
}

func (c *stubCache) SaveAnswer(_ context.Context, sessionID, questionID, response string, _ time.Duration) error {
	if c.answers[sessionID] == nil {
		c.answers[sessionID] = make(map[string]string)
	}
	c.answers[sessionID][questionID] = response
	return nil
}

func (c *stubCache) Answers(_ context.Context, sessionID string) (map[string]string, error) {
	return c.answers[sessionID], nil
}

func (c *stubCache) ClearAnswers(_ context.Context, sessionID string) error {
	delete(c.answers, sessionID)
	return nil
}

func (c *stubCache) QueuePersist(_ context.Context, job PersistAnswerJob) error {
	c.queued = append(c.queued, job)
	return nil
}

func (c *stubCache) PublishMonitorEvent(_ context.Context, _ string, event MonitorEvent) error {
	c.events = append(c.events, event)
	return nil
}
