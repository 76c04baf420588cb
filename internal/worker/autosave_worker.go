package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/skillproof/skillproof-backend/internal/config"
	"github.com/skillproof/skillproof-backend/internal/service"
)

// AutosaveWorker consumes the answer persistence queue and UPSERTs answers
// to PostgreSQL. The hot path only touches Redis; this worker is what makes
// autosaves durable.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var job service.PersistAnswerJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Msg("unmarshal error")
		return
	}

	if err := w.persistAnswer(ctx, &job); err != nil {
		w.log.Error().Err(err).
			Str("session_id", job.SessionID).
			Str("question_id", job.QuestionID).
			Msg("persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AutosaveWorker) persistAnswer(ctx context.Context, job *service.PersistAnswerJob) error {
	sessionID, err := uuid.Parse(job.SessionID)
	if err != nil {
		return err
	}
	questionID, err := uuid.Parse(job.QuestionID)
	if err != nil {
		return err
	}

	// A submitted session is final; late queue items for it are dropped by
	// the WHERE clause of the guarded insert.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO candidate_responses (session_id, question_id, response)
		 SELECT $1, $2, $3
		 WHERE EXISTS (
		     SELECT 1 FROM test_sessions WHERE id = $1 AND submitted_at IS NULL
		 )
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET response = EXCLUDED.response, updated_at = NOW()`,
		sessionID, questionID, job.Response,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var job service.PersistAnswerJob
		if err := json.Unmarshal([]byte(result), &job); err != nil {
			continue
		}
		if err := w.persistAnswer(ctx, &job); err != nil {
			w.log.Error().Err(err).Str("session_id", job.SessionID).Msg("drain persist error")
			continue
		}
		drained++
	}
	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("drained pending autosaves")
	}
}
