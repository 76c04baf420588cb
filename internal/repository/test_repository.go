package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skillproof/skillproof-backend/internal/model"
)

// TestRepository handles test data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

const testColumns = `id, admin_id, name, duration_minutes, material_type, material_ref,
	status, candidate_emails, allow_uploads, upload_limit_mb, created_at, updated_at`

func scanTest(row interface{ Scan(...any) error }) (*model.Test, error) {
	t := &model.Test{}
	err := row.Scan(&t.ID, &t.AdminID, &t.Name, &t.DurationMinutes, &t.MaterialType,
		&t.MaterialRef, &t.Status, &t.CandidateEmails, &t.AllowUploads,
		&t.UploadLimitMB, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a test by its UUID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return scanTest(r.pool.QueryRow(ctx,
		`SELECT `+testColumns+` FROM tests WHERE id = $1`, id))
}

// Create inserts a new test.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (admin_id, name, duration_minutes, material_type, material_ref,
		                    status, candidate_emails, allow_uploads, upload_limit_mb)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		t.AdminID, t.Name, t.DurationMinutes, t.MaterialType, t.MaterialRef,
		t.Status, t.CandidateEmails, t.AllowUploads, t.UploadLimitMB,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// Update rewrites the mutable fields of a test.
func (r *TestRepository) Update(ctx context.Context, t *model.Test) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests
		 SET name = $1, duration_minutes = $2, material_type = $3, material_ref = $4,
		     candidate_emails = $5, allow_uploads = $6, upload_limit_mb = $7,
		     updated_at = NOW()
		 WHERE id = $8`,
		t.Name, t.DurationMinutes, t.MaterialType, t.MaterialRef,
		t.CandidateEmails, t.AllowUploads, t.UploadLimitMB, t.ID)
	return err
}

// UpdateStatus updates a test's lifecycle status.
func (r *TestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.TestStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// ListByAdminPaginated retrieves an admin's tests with per-test session counts.
func (r *TestRepository) ListByAdminPaginated(ctx context.Context, adminID, limit, offset int) ([]model.TestSummary, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tests WHERE admin_id = $1`, adminID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT t.id, t.admin_id, t.name, t.duration_minutes, t.material_type, t.material_ref,
		       t.status, t.candidate_emails, t.allow_uploads, t.upload_limit_mb,
		       t.created_at, t.updated_at,
		       COUNT(s.id) AS session_count,
		       COUNT(s.id) FILTER (WHERE s.status = '%s') AS completed_count
		FROM tests t
		LEFT JOIN test_sessions s ON s.test_id = t.id
		WHERE t.admin_id = $1
		GROUP BY t.id
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3`, model.SessionStatusCompleted)

	rows, err := r.pool.Query(ctx, query, adminID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []model.TestSummary
	for rows.Next() {
		var t model.TestSummary
		if err := rows.Scan(&t.ID, &t.AdminID, &t.Name, &t.DurationMinutes, &t.MaterialType,
			&t.MaterialRef, &t.Status, &t.CandidateEmails, &t.AllowUploads,
			&t.UploadLimitMB, &t.CreatedAt, &t.UpdatedAt,
			&t.SessionCount, &t.CompletedCount); err != nil {
			return nil, 0, err
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}
