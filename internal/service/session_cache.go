package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skillproof/skillproof-backend/internal/config"
)

// PersistAnswerJob is the payload pushed to the answer persistence queue.
type PersistAnswerJob struct {
	SessionID  string `json:"session_id"`
	QuestionID string `json:"question_id"`
	Response   string `json:"response"`
}

// MonitorEvent is a live progress event published per test for admin
// dashboards.
type MonitorEvent struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	CandidateEmail string `json:"candidate_email"`
	At             int64  `json:"at"`
}

// SessionCache is the hot-path store for in-flight sessions: start times,
// autosaved answers, submission deadlines and the persistence queue.
type SessionCache interface {
	SetStart(ctx context.Context, sessionID string, startedAt time.Time, ttl time.Duration) error
	GetStart(ctx context.Context, sessionID string) (time.Time, bool, error)
	AddDeadline(ctx context.Context, sessionID string, deadline time.Time) error
	RemoveDeadline(ctx context.Context, sessionID string) error
	DueDeadlines(ctx context.Context, now time.Time) ([]string, error)
	SaveAnswer(ctx context.Context, sessionID, questionID, response string, ttl time.Duration) error
	Answers(ctx context.Context, sessionID string) (map[string]string, error)
	ClearAnswers(ctx context.Context, sessionID string) error
	QueuePersist(ctx context.Context, job PersistAnswerJob) error
	PublishMonitorEvent(ctx context.Context, testID string, event MonitorEvent) error
}

// RedisSessionCache implements SessionCache on a Redis client.
type RedisSessionCache struct {
	rdb *redis.Client
}

// NewRedisSessionCache creates a new RedisSessionCache.
func NewRedisSessionCache(rdb *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{rdb: rdb}
}

func (c *RedisSessionCache) SetStart(ctx context.Context, sessionID string, startedAt time.Time, ttl time.Duration) error {
	key := config.CacheKey.SessionStartKey(sessionID)
	return c.rdb.Set(ctx, key, startedAt.UTC().Format(time.RFC3339Nano), ttl).Err()
}

func (c *RedisSessionCache) GetStart(ctx context.Context, sessionID string) (time.Time, bool, error) {
	key := config.CacheKey.SessionStartKey(sessionID)
	raw, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get session start: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse session start: %w", err)
	}
	return t, true, nil
}

func (c *RedisSessionCache) AddDeadline(ctx context.Context, sessionID string, deadline time.Time) error {
	return c.rdb.ZAdd(ctx, config.CacheKey.SessionDeadlinesKey(), redis.Z{
		Score:  float64(deadline.Unix()),
		Member: sessionID,
	}).Err()
}

func (c *RedisSessionCache) RemoveDeadline(ctx context.Context, sessionID string) error {
	return c.rdb.ZRem(ctx, config.CacheKey.SessionDeadlinesKey(), sessionID).Err()
}

// DueDeadlines returns session ids whose deadline has passed. Members are
// left in the set so a failed auto-submit gets retried on the next sweep.
func (c *RedisSessionCache) DueDeadlines(ctx context.Context, now time.Time) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, config.CacheKey.SessionDeadlinesKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
}

func (c *RedisSessionCache) SaveAnswer(ctx context.Context, sessionID, questionID, response string, ttl time.Duration) error {
	key := config.CacheKey.SessionAnswersKey(sessionID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, questionID, response)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisSessionCache) Answers(ctx context.Context, sessionID string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(sessionID)).Result()
}

func (c *RedisSessionCache) ClearAnswers(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, config.CacheKey.SessionAnswersKey(sessionID)).Err()
}

func (c *RedisSessionCache) QueuePersist(ctx context.Context, job PersistAnswerJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal persist job: %w", err)
	}
	return c.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err()
}

func (c *RedisSessionCache) PublishMonitorEvent(ctx context.Context, testID string, event MonitorEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	return c.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(testID), payload).Err()
}
