package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/skillproof/skillproof-backend/internal/model"
)

type testStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	Create(ctx context.Context, t *model.Test) error
	Update(ctx context.Context, t *model.Test) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.TestStatus) error
	ListByAdminPaginated(ctx context.Context, adminID, limit, offset int) ([]model.TestSummary, int, error)
}

type testSessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error)
	Materialize(ctx context.Context, testID uuid.UUID, emails, tokens []string) (int, error)
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.TestSession, error)
}

type reviewStore interface {
	ListForReview(ctx context.Context, sessionID uuid.UUID) ([]model.ReviewedResponse, error)
}

// SessionReview is the admin view of one candidate's submission: per-question
// responses joined with the authored questions, plus scoring of the
// auto-gradable part.
type SessionReview struct {
	Session       model.TestSession        `json:"session"`
	Responses     []model.ReviewedResponse `json:"responses"`
	AutoScored    int                      `json:"auto_scored"`
	AutoCorrect   int                      `json:"auto_correct"`
	UploadURL     string                   `json:"upload_url,omitempty"`
	AnsweredCount int                      `json:"answered_count"`
}

// TestService covers the admin authoring surface: creating and editing
// tests, controlling their lifecycle and reviewing submissions.
type TestService struct {
	tests     testStore
	sessions  testSessionStore
	questions sessionQuestionStore
	reviews   reviewStore
	materials *MaterialService
}

// NewTestService creates a new TestService.
func NewTestService(
	tests testStore,
	sessions testSessionStore,
	questions sessionQuestionStore,
	reviews reviewStore,
	materials *MaterialService,
) *TestService {
	return &TestService{
		tests:     tests,
		sessions:  sessions,
		questions: questions,
		reviews:   reviews,
		materials: materials,
	}
}

// Create authors a new test in DRAFT status, or directly ACTIVE when the
// request asks for immediate activation (sessions are materialized then).
func (s *TestService) Create(ctx context.Context, adminID int, req model.CreateTestRequest) (*model.Test, error) {
	emails, err := normalizeEmails(req.CandidateEmails)
	if err != nil {
		return nil, err
	}
	if err := validateMaterialRef(model.MaterialType(req.MaterialType), req.MaterialRef); err != nil {
		return nil, err
	}

	t := &model.Test{
		ID:              uuid.New(),
		AdminID:         adminID,
		Name:            strings.TrimSpace(req.Name),
		DurationMinutes: req.DurationMinutes,
		MaterialType:    model.MaterialType(req.MaterialType),
		MaterialRef:     req.MaterialRef,
		Status:          model.TestStatusDraft,
		CandidateEmails: emails,
		AllowUploads:    req.AllowUploads,
		UploadLimitMB:   req.UploadLimitMB,
	}
	if req.Activate {
		t.Status = model.TestStatusActive
	}
	if err := s.tests.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	if req.Activate {
		if err := s.materializeSessions(ctx, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Update edits a test. Everything is frozen while the test is INACTIVE;
// while DRAFT or ACTIVE the invitee list and name stay editable, but
// structural fields (duration, material, uploads) freeze once any candidate
// has started, so no attempt changes shape mid-flight.
func (s *TestService) Update(ctx context.Context, adminID int, testID uuid.UUID, req model.UpdateTestRequest) (*model.Test, error) {
	t, err := s.getOwned(ctx, adminID, testID)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TestStatusInactive {
		return nil, ErrTestFrozen
	}

	structural := req.DurationMinutes != 0 || req.MaterialType != "" || req.MaterialRef != "" ||
		req.AllowUploads != nil || req.UploadLimitMB != nil
	if structural {
		frozen, err := s.anyStarted(ctx, testID)
		if err != nil {
			return nil, err
		}
		if frozen {
			return nil, ErrTestFrozen
		}
	}

	if req.Name != "" {
		t.Name = strings.TrimSpace(req.Name)
	}
	if req.DurationMinutes != 0 {
		t.DurationMinutes = req.DurationMinutes
	}
	if req.MaterialType != "" {
		t.MaterialType = model.MaterialType(req.MaterialType)
	}
	if req.MaterialRef != "" {
		t.MaterialRef = req.MaterialRef
	}
	if err := validateMaterialRef(t.MaterialType, t.MaterialRef); err != nil {
		return nil, err
	}
	if req.CandidateEmails != nil {
		emails, err := normalizeEmails(req.CandidateEmails)
		if err != nil {
			return nil, err
		}
		t.CandidateEmails = emails
	}
	if req.AllowUploads != nil {
		t.AllowUploads = *req.AllowUploads
	}
	if req.UploadLimitMB != nil {
		t.UploadLimitMB = req.UploadLimitMB
	}

	if err := s.tests.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update test: %w", err)
	}
	// New invitees on an already-active test get sessions right away.
	if t.Status == model.TestStatusActive && req.CandidateEmails != nil {
		if err := s.materializeSessions(ctx, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Activate opens a test for candidates and materializes one session per
// invited email. Re-activation after a pause only fills in sessions for
// emails added meanwhile; existing sessions and their progress are kept.
func (s *TestService) Activate(ctx context.Context, adminID int, testID uuid.UUID) (*model.Test, error) {
	t, err := s.getOwned(ctx, adminID, testID)
	if err != nil {
		return nil, err
	}
	if err := s.tests.UpdateStatus(ctx, testID, model.TestStatusActive); err != nil {
		return nil, fmt.Errorf("activate test: %w", err)
	}
	t.Status = model.TestStatusActive
	if err := s.materializeSessions(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Deactivate pauses a test: open sessions stop resolving until the test is
// activated again. Recorded submissions are unaffected.
func (s *TestService) Deactivate(ctx context.Context, adminID int, testID uuid.UUID) (*model.Test, error) {
	t, err := s.getOwned(ctx, adminID, testID)
	if err != nil {
		return nil, err
	}
	if err := s.tests.UpdateStatus(ctx, testID, model.TestStatusInactive); err != nil {
		return nil, fmt.Errorf("deactivate test: %w", err)
	}
	t.Status = model.TestStatusInactive
	return t, nil
}

// Get returns a single owned test.
func (s *TestService) Get(ctx context.Context, adminID int, testID uuid.UUID) (*model.Test, error) {
	return s.getOwned(ctx, adminID, testID)
}

// List returns the admin's tests with session counts, newest first.
func (s *TestService) List(ctx context.Context, adminID, page, perPage int) ([]model.TestSummary, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.tests.ListByAdminPaginated(ctx, adminID, perPage, (page-1)*perPage)
}

// ListSessions returns a test's sessions including access tokens, so the
// admin can hand out (or re-send) candidate links.
func (s *TestService) ListSessions(ctx context.Context, adminID int, testID uuid.UUID) ([]model.TestSession, error) {
	if _, err := s.getOwned(ctx, adminID, testID); err != nil {
		return nil, err
	}
	return s.sessions.ListByTest(ctx, testID)
}

// Review assembles the full submission view for one session: every authored
// question with the candidate's response (or none), multiple choice graded
// against the stored correct option, and a signed URL for any upload.
func (s *TestService) Review(ctx context.Context, adminID int, sessionID uuid.UUID) (*SessionReview, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if _, err := s.getOwned(ctx, adminID, sess.TestID); err != nil {
		return nil, err
	}

	rows, err := s.reviews.ListForReview(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}

	review := &SessionReview{Session: *sess, Responses: rows}
	for i := range rows {
		r := &review.Responses[i]
		if r.Response != nil {
			review.AnsweredCount++
		}
		if r.Type == model.QuestionTypeMultipleChoice && r.CorrectOption != nil {
			review.AutoScored++
			correct := r.Response != nil && *r.Response == fmt.Sprintf("%d", *r.CorrectOption)
			r.Correct = &correct
			if correct {
				review.AutoCorrect++
			}
		}
	}

	if sess.UploadPath != nil {
		u, err := s.materials.SignURL(uploadsPrefix+*sess.UploadPath, time.Hour)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to sign upload url")
		} else {
			review.UploadURL = u
		}
	}
	return review, nil
}

func (s *TestService) getOwned(ctx context.Context, adminID int, testID uuid.UUID) (*model.Test, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, ErrTestNotFound
	}
	if t.AdminID != adminID {
		return nil, ErrNotTestOwner
	}
	return t, nil
}

// materializeSessions creates a session with a fresh access token for every
// invited email that does not have one yet. Existing sessions keep their
// token so links already sent out never break.
func (s *TestService) materializeSessions(ctx context.Context, t *model.Test) error {
	tokens := make([]string, len(t.CandidateEmails))
	for i := range tokens {
		token, err := newAccessToken()
		if err != nil {
			return err
		}
		tokens[i] = token
	}
	created, err := s.sessions.Materialize(ctx, t.ID, t.CandidateEmails, tokens)
	if err != nil {
		return fmt.Errorf("materialize sessions: %w", err)
	}
	if created > 0 {
		log.Info().Str("test_id", t.ID.String()).Int("created", created).Msg("candidate sessions materialized")
	}
	return nil
}

func (s *TestService) anyStarted(ctx context.Context, testID uuid.UUID) (bool, error) {
	sessions, err := s.sessions.ListByTest(ctx, testID)
	if err != nil {
		return false, fmt.Errorf("list sessions: %w", err)
	}
	for i := range sessions {
		if sessions[i].StartedAt != nil {
			return true, nil
		}
	}
	return false, nil
}

// newAccessToken mints an unguessable URL-safe access token.
func newAccessToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// normalizeEmails lowercases, trims and dedupes the invitee list while
// keeping its order.
func normalizeEmails(emails []string) ([]string, error) {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		norm := strings.ToLower(strings.TrimSpace(e))
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	if len(out) == 0 {
		return nil, ErrInvalidInvitees
	}
	return out, nil
}

func validateMaterialRef(mt model.MaterialType, ref string) error {
	switch mt {
	case model.MaterialTypeLink:
		u, err := url.Parse(ref)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: material link must be an absolute http(s) URL", ErrMaterialUnavailable)
		}
	case model.MaterialTypeFile:
		if _, err := cleanStorePath(ref); err != nil {
			return err
		}
	}
	return nil
}
