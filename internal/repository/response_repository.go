package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skillproof/skillproof-backend/internal/model"
)

// ResponseRepository handles candidate response data access.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

// Upsert creates or overwrites the response for (session, question).
// The pair is the natural idempotency key: duplicate autosaves and
// submit-time rewrites are last-write-wins, never appends.
func (r *ResponseRepository) Upsert(ctx context.Context, sessionID, questionID uuid.UUID, response string, filePath *string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO candidate_responses (session_id, question_id, response, file_path)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET response = EXCLUDED.response,
		     file_path = COALESCE(EXCLUDED.file_path, candidate_responses.file_path),
		     updated_at = NOW()`,
		sessionID, questionID, response, filePath)
	return err
}

// ListForReview returns every question of the session's test joined with the
// candidate's response, in presentation order. Unanswered questions appear
// with a nil response so reviewers see gaps.
func (r *ResponseRepository) ListForReview(ctx context.Context, sessionID uuid.UUID) ([]model.ReviewedResponse, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.question_text, q.type, q.options, q.correct_option, q.order_num,
		        cr.response, cr.file_path
		 FROM test_sessions s
		 JOIN questions q ON q.test_id = s.test_id
		 LEFT JOIN candidate_responses cr
		        ON cr.session_id = s.id AND cr.question_id = q.id
		 WHERE s.id = $1
		 ORDER BY q.order_num ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviewed []model.ReviewedResponse
	for rows.Next() {
		var rr model.ReviewedResponse
		if err := rows.Scan(&rr.QuestionID, &rr.QuestionText, &rr.Type, &rr.Options,
			&rr.CorrectOption, &rr.OrderNum, &rr.Response, &rr.FilePath); err != nil {
			return nil, err
		}
		reviewed = append(reviewed, rr)
	}
	return reviewed, rows.Err()
}
