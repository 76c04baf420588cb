package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/skillproof/skillproof-backend/internal/model"
)

// cacheSlack keeps hot-path session keys alive well past the test deadline
// so late auto-submits still find the autosaved answers.
const cacheSlack = 24 * time.Hour

type sessionStore interface {
	GetByAccessToken(ctx context.Context, token string) (*model.TestSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error)
	Start(ctx context.Context, id uuid.UUID, startedAt time.Time) (*model.TestSession, error)
	Complete(ctx context.Context, id uuid.UUID, answers []model.SubmitAnswer, submittedAt time.Time, uploadPath *string) (*model.TestSession, bool, error)
	SetUploadPath(ctx context.Context, id uuid.UUID, path string) error
}

type sessionTestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
}

type sessionQuestionStore interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
}

// SessionState is the full candidate-facing view of a session: everything the
// test-taking page needs in one payload. Remaining time is derived on the
// server from the authoritative start time, never trusted from the client.
type SessionState struct {
	SessionID        uuid.UUID                    `json:"session_id"`
	TestName         string                       `json:"test_name"`
	CandidateEmail   string                       `json:"candidate_email"`
	Status           model.SessionStatus          `json:"status"`
	DurationMinutes  int                          `json:"duration_minutes"`
	RemainingSeconds int                          `json:"remaining_seconds"`
	MaterialURL      string                       `json:"material_url,omitempty"`
	AllowUploads     bool                         `json:"allow_uploads"`
	UploadLimitMB    *int                         `json:"upload_limit_mb,omitempty"`
	Questions        []model.QuestionForCandidate `json:"questions,omitempty"`
	SavedAnswers     map[string]string            `json:"saved_answers,omitempty"`
	SubmittedAt      *time.Time                   `json:"submitted_at,omitempty"`
}

// SessionService drives the candidate side of a test: resolving access
// tokens, starting the clock, autosaving answers and recording submissions
// (manual and deadline-driven).
type SessionService struct {
	sessions  sessionStore
	tests     sessionTestStore
	questions sessionQuestionStore
	materials *MaterialService
	cache     SessionCache
	now       func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions sessionStore,
	tests sessionTestStore,
	questions sessionQuestionStore,
	materials *MaterialService,
	cache SessionCache,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		tests:     tests,
		questions: questions,
		materials: materials,
		cache:     cache,
		now:       time.Now,
	}
}

// Resolve maps an access token plus the candidate-entered email to a
// session. The token alone identifies the session; the email is a
// confirmation step and must match the invited address case-insensitively.
//
// A completed session always resolves (so the candidate sees the
// already-submitted page), but an open session on a non-active test does not.
func (s *SessionService) Resolve(ctx context.Context, token, email string) (*model.TestSession, *model.Test, error) {
	sess, err := s.sessions.GetByAccessToken(ctx, token)
	if err != nil {
		return nil, nil, ErrSessionNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(email), sess.CandidateEmail) {
		return nil, nil, ErrEmailMismatch
	}
	t, err := s.tests.GetByID(ctx, sess.TestID)
	if err != nil {
		return nil, nil, fmt.Errorf("load test: %w", err)
	}
	if sess.SubmittedAt == nil && t.Status != model.TestStatusActive {
		return nil, nil, ErrTestNotActive
	}
	return sess, t, nil
}

// Start begins the attempt. The first call stamps started_at and registers
// the auto-submit deadline; repeated calls return the original stamp so a
// page refresh never resets the countdown.
func (s *SessionService) Start(ctx context.Context, token, email string) (*SessionState, error) {
	sess, t, err := s.Resolve(ctx, token, email)
	if err != nil {
		return nil, err
	}
	if sess.SubmittedAt != nil {
		return nil, ErrSessionClosed
	}

	started, err := s.sessions.Start(ctx, sess.ID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if started.StartedAt == nil {
		return nil, fmt.Errorf("start session: no start time recorded")
	}

	ttl := time.Duration(t.DurationMinutes)*time.Minute + cacheSlack
	if err := s.cache.SetStart(ctx, started.ID.String(), *started.StartedAt, ttl); err != nil {
		log.Warn().Err(err).Str("session_id", started.ID.String()).Msg("failed to cache session start")
	}
	deadline := started.StartedAt.Add(time.Duration(t.DurationMinutes) * time.Minute)
	if err := s.cache.AddDeadline(ctx, started.ID.String(), deadline); err != nil {
		log.Warn().Err(err).Str("session_id", started.ID.String()).Msg("failed to register session deadline")
	}

	s.publishMonitor(ctx, t.ID, "session_started", started)
	return s.buildState(ctx, started, t)
}

// State returns the current candidate view without mutating anything.
func (s *SessionService) State(ctx context.Context, token, email string) (*SessionState, error) {
	sess, t, err := s.Resolve(ctx, token, email)
	if err != nil {
		return nil, err
	}
	return s.buildState(ctx, sess, t)
}

// Autosave records a single answer in the cache and queues it for durable
// persistence. It is a no-op error on a closed session so the client can
// keep firing until the submit response lands.
func (s *SessionService) Autosave(ctx context.Context, token, email string, req model.AutosaveAnswerRequest) error {
	sess, t, err := s.Resolve(ctx, token, email)
	if err != nil {
		return err
	}
	if sess.SubmittedAt != nil {
		return ErrSessionClosed
	}
	if sess.StartedAt == nil {
		return ErrSessionClosed
	}
	if err := s.validateAnswer(ctx, t, req.QuestionID, req.Response); err != nil {
		return err
	}

	ttl := time.Duration(t.DurationMinutes)*time.Minute + cacheSlack
	if err := s.cache.SaveAnswer(ctx, sess.ID.String(), req.QuestionID.String(), req.Response, ttl); err != nil {
		return fmt.Errorf("cache answer: %w", err)
	}
	if err := s.cache.QueuePersist(ctx, PersistAnswerJob{
		SessionID:  sess.ID.String(),
		QuestionID: req.QuestionID.String(),
		Response:   req.Response,
	}); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("failed to queue answer persistence")
	}

	s.publishMonitor(ctx, t.ID, "answer_saved", sess)
	return nil
}

// Submit records the candidate's final answers. Answers sent in the request
// win; autosaved answers fill in anything the final payload omitted. The
// first submission wins, a repeat returns the already-recorded session.
func (s *SessionService) Submit(ctx context.Context, token string, req model.SubmitSessionRequest) (*model.TestSession, error) {
	sess, t, err := s.Resolve(ctx, token, req.Email)
	if err != nil {
		return nil, err
	}
	if sess.SubmittedAt != nil {
		return sess, nil
	}
	for _, a := range req.Answers {
		if err := s.validateAnswer(ctx, t, a.QuestionID, a.Response); err != nil {
			return nil, err
		}
	}

	answers := s.mergeWithAutosaved(ctx, sess.ID, req.Answers)
	completed, fresh, err := s.sessions.Complete(ctx, sess.ID, answers, s.now().UTC(), nil)
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if fresh {
		s.finishCleanup(ctx, t.ID, completed)
	}
	return completed, nil
}

// AutoComplete force-submits an expired session using whatever answers were
// autosaved. Called by the deadline sweeper, never by a candidate. It is
// idempotent: a session already submitted reports done without changes.
func (s *SessionService) AutoComplete(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.SubmittedAt != nil {
		if err := s.cache.RemoveDeadline(ctx, sessionID.String()); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to drop stale deadline")
		}
		return nil
	}

	answers := s.mergeWithAutosaved(ctx, sess.ID, nil)
	completed, fresh, err := s.sessions.Complete(ctx, sess.ID, answers, s.now().UTC(), nil)
	if err != nil {
		return fmt.Errorf("auto-complete session: %w", err)
	}
	if fresh {
		log.Info().
			Str("session_id", sessionID.String()).
			Str("candidate_email", completed.CandidateEmail).
			Msg("session auto-submitted at deadline")
		s.finishCleanup(ctx, completed.TestID, completed)
	}
	return nil
}

// AttachUpload records a candidate file upload on an open session.
func (s *SessionService) AttachUpload(ctx context.Context, token, email, storePath string) error {
	sess, _, err := s.Resolve(ctx, token, email)
	if err != nil {
		return err
	}
	if sess.SubmittedAt != nil {
		return ErrSessionClosed
	}
	if err := s.sessions.SetUploadPath(ctx, sess.ID, storePath); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// RemainingSeconds derives the countdown for a session from its start time
// and the test duration, clamped at zero. A session that has not started yet
// has the full duration remaining.
func (s *SessionService) RemainingSeconds(sess *model.TestSession, t *model.Test) int {
	if sess.StartedAt == nil {
		return t.DurationMinutes * 60
	}
	return s.remainingFrom(*sess.StartedAt, t)
}

func (s *SessionService) remainingFrom(startedAt time.Time, t *model.Test) int {
	total := t.DurationMinutes * 60
	elapsed := int(s.now().UTC().Sub(startedAt.UTC()).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (s *SessionService) buildState(ctx context.Context, sess *model.TestSession, t *model.Test) (*SessionState, error) {
	state := &SessionState{
		SessionID:        sess.ID,
		TestName:         t.Name,
		CandidateEmail:   sess.CandidateEmail,
		Status:           sess.Status,
		DurationMinutes:  t.DurationMinutes,
		RemainingSeconds: s.RemainingSeconds(sess, t),
		AllowUploads:     t.AllowUploads,
		UploadLimitMB:    t.UploadLimitMB,
		SubmittedAt:      sess.SubmittedAt,
	}
	if sess.SubmittedAt != nil {
		state.RemainingSeconds = 0
		return state, nil
	}
	// Material and questions stay hidden until the clock starts.
	if sess.StartedAt == nil {
		return state, nil
	}

	// The cached start time is the hot-path copy; a miss is healed from the
	// database row so later reads stop hitting this branch.
	if cached, ok, err := s.cache.GetStart(ctx, sess.ID.String()); err == nil && ok {
		state.RemainingSeconds = s.remainingFrom(cached, t)
	} else {
		ttl := time.Duration(t.DurationMinutes)*time.Minute + cacheSlack
		if err := s.cache.SetStart(ctx, sess.ID.String(), *sess.StartedAt, ttl); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("failed to heal session start cache")
		}
	}

	materialURL, err := s.materials.ResolveURL(t)
	if err != nil {
		return nil, err
	}
	state.MaterialURL = materialURL

	questions, err := s.questions.ListByTest(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	state.Questions = make([]model.QuestionForCandidate, 0, len(questions))
	for i := range questions {
		state.Questions = append(state.Questions, questions[i].ForCandidate())
	}

	saved, err := s.cache.Answers(ctx, sess.ID.String())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("failed to load autosaved answers")
	} else if len(saved) > 0 {
		state.SavedAnswers = saved
	}
	return state, nil
}

// validateAnswer checks the question belongs to the test and, for multiple
// choice, that the response is a valid option index.
func (s *SessionService) validateAnswer(ctx context.Context, t *model.Test, questionID uuid.UUID, response string) error {
	questions, err := s.questions.ListByTest(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	for i := range questions {
		if questions[i].ID != questionID {
			continue
		}
		if questions[i].Type == model.QuestionTypeMultipleChoice && response != "" {
			idx, err := strconv.Atoi(response)
			if err != nil || idx < 0 || idx >= len(questions[i].Options) {
				return fmt.Errorf("%w: option %q out of range for question %s", ErrInvalidQuestion, response, questionID)
			}
		}
		return nil
	}
	return ErrQuestionNotFound
}

// mergeWithAutosaved overlays explicit answers on top of the cached
// autosaves. Explicit answers take precedence.
func (s *SessionService) mergeWithAutosaved(ctx context.Context, sessionID uuid.UUID, explicit []model.SubmitAnswer) []model.SubmitAnswer {
	merged := make(map[uuid.UUID]string)

	saved, err := s.cache.Answers(ctx, sessionID.String())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to load autosaved answers for merge")
	}
	for qid, response := range saved {
		id, err := uuid.Parse(qid)
		if err != nil {
			continue
		}
		merged[id] = response
	}
	for _, a := range explicit {
		merged[a.QuestionID] = a.Response
	}

	answers := make([]model.SubmitAnswer, 0, len(merged))
	for qid, response := range merged {
		answers = append(answers, model.SubmitAnswer{QuestionID: qid, Response: response})
	}
	return answers
}

// finishCleanup tears down hot-path state after a recorded submission.
func (s *SessionService) finishCleanup(ctx context.Context, testID uuid.UUID, sess *model.TestSession) {
	id := sess.ID.String()
	if err := s.cache.RemoveDeadline(ctx, id); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("failed to remove deadline")
	}
	if err := s.cache.ClearAnswers(ctx, id); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("failed to clear autosaved answers")
	}
	s.publishMonitor(ctx, testID, "session_completed", sess)
}

func (s *SessionService) publishMonitor(ctx context.Context, testID uuid.UUID, eventType string, sess *model.TestSession) {
	err := s.cache.PublishMonitorEvent(ctx, testID.String(), MonitorEvent{
		Type:           eventType,
		SessionID:      sess.ID.String(),
		CandidateEmail: sess.CandidateEmail,
		At:             s.now().UTC().Unix(),
	})
	if err != nil {
		log.Warn().Err(err).Str("test_id", testID.String()).Msg("failed to publish monitor event")
	}
}
