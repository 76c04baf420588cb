package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skillproof/skillproof-backend/internal/model"
)

// TestSessionRepository handles candidate session data access.
type TestSessionRepository struct {
	pool *pgxpool.Pool
}

// NewTestSessionRepository creates a new TestSessionRepository.
func NewTestSessionRepository(pool *pgxpool.Pool) *TestSessionRepository {
	return &TestSessionRepository{pool: pool}
}

const sessionColumns = `id, test_id, candidate_email, access_token, status,
	started_at, submitted_at, time_taken_seconds, upload_path, created_at`

func scanSession(row interface{ Scan(...any) error }) (*model.TestSession, error) {
	s := &model.TestSession{}
	err := row.Scan(&s.ID, &s.TestID, &s.CandidateEmail, &s.AccessToken, &s.Status,
		&s.StartedAt, &s.SubmittedAt, &s.TimeTakenSeconds, &s.UploadPath, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByAccessToken retrieves a session by its opaque access token.
func (r *TestSessionRepository) GetByAccessToken(ctx context.Context, token string) (*model.TestSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE access_token = $1`, token))
}

// GetByID retrieves a session by its UUID.
func (r *TestSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE id = $1`, id))
}

// Materialize creates one session per candidate email that does not already
// have one for this test. Returns the number of sessions actually created,
// so re-activation is a natural no-op for existing candidates.
func (r *TestSessionRepository) Materialize(ctx context.Context, testID uuid.UUID, emails, tokens []string) (int, error) {
	if len(emails) != len(tokens) {
		return 0, fmt.Errorf("emails/tokens length mismatch: %d vs %d", len(emails), len(tokens))
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO test_sessions (test_id, candidate_email, access_token, status)
		 SELECT $1, u.email, u.token, $2
		 FROM UNNEST($3::text[], $4::text[]) AS u (email, token)
		 ON CONFLICT (test_id, candidate_email) DO NOTHING`,
		testID, model.SessionStatusNotStarted, emails, tokens)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Start records started_at exactly once and moves the session to STARTED.
// A second call returns the original started_at untouched: overwriting it
// would let a candidate regain time by reopening the link.
func (r *TestSessionRepository) Start(ctx context.Context, id uuid.UUID, startedAt time.Time) (*model.TestSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE test_sessions
		 SET status = $1, started_at = $2
		 WHERE id = $3 AND started_at IS NULL AND submitted_at IS NULL
		 RETURNING `+sessionColumns, model.SessionStatusStarted, startedAt, id))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Already started (or already completed) — return the existing record.
	return r.GetByID(ctx, id)
}

// Complete persists the submitted answers and marks the session COMPLETED in
// one transaction. If the session is already completed it is returned
// unchanged with completed=false; submitted_at and time_taken_seconds are
// never overwritten. If answer persistence fails the whole transaction rolls
// back and completion is not recorded.
//
// Elapsed time is computed from the authoritative started_at inside the
// statement; a session completed without ever starting records zero seconds.
func (r *TestSessionRepository) Complete(
	ctx context.Context,
	id uuid.UUID,
	answers []model.SubmitAnswer,
	submittedAt time.Time,
	uploadPath *string,
) (*model.TestSession, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the row so a manual submit racing the auto-submit serializes here.
	existing, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, false, err
	}
	if existing.SubmittedAt != nil {
		return existing, false, nil
	}

	for _, a := range answers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO candidate_responses (session_id, question_id, response)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, question_id) DO UPDATE
			 SET response = EXCLUDED.response, updated_at = NOW()`,
			id, a.QuestionID, a.Response,
		); err != nil {
			return nil, false, fmt.Errorf("persist answer %s: %w", a.QuestionID, err)
		}
	}

	s, err := scanSession(tx.QueryRow(
		ctx,
		`UPDATE test_sessions
		 SET status = $1,
		     started_at = COALESCE(started_at, $2),
		     submitted_at = $2,
		     time_taken_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - COALESCE(started_at, $2::timestamptz)))))::int,
		     upload_path = COALESCE($3, upload_path)
		 WHERE id = $4
		 RETURNING `+sessionColumns,
		model.SessionStatusCompleted, submittedAt, uploadPath, id))
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return s, true, nil
}

// SetUploadPath records a candidate upload path on a not-yet-completed session.
func (r *TestSessionRepository) SetUploadPath(ctx context.Context, id uuid.UUID, path string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE test_sessions SET upload_path = $1 WHERE id = $2 AND submitted_at IS NULL`,
		path, id)
	return err
}

// ListByTest retrieves all sessions of a test for the admin review view.
func (r *TestSessionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.TestSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM test_sessions
		 WHERE test_id = $1
		 ORDER BY candidate_email ASC`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.TestSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
