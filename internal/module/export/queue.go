package export

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// Queue is the broker that wakes workers. Only job IDs travel through it;
// job state lives in the database.
type Queue interface {
	Push(ctx context.Context, jobID uuid.UUID) error
	// Pop blocks up to the configured poll timeout. A nil UUID with a nil
	// error means the timeout elapsed with no work.
	Pop(ctx context.Context) (uuid.UUID, error)
}

type redisQueue struct {
	client      redis.UniversalClient
	key         string
	pollTimeout time.Duration
}

// NewRedisQueue creates a redis-list-backed export queue.
func NewRedisQueue(client redis.UniversalClient, key string, pollTimeout time.Duration) Queue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &redisQueue{
		client:      client,
		key:         key,
		pollTimeout: pollTimeout,
	}
}

func (q *redisQueue) Push(ctx context.Context, jobID uuid.UUID) error {
	if err := q.client.RPush(ctx, q.key, jobID.String()).Err(); err != nil {
		return apperrors.QueueUnavailable(err)
	}
	return nil
}

func (q *redisQueue) Pop(ctx context.Context) (uuid.UUID, error) {
	result, err := q.client.BLPop(ctx, q.pollTimeout, q.key).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, apperrors.QueueUnavailable(err)
	}
	// BLPOP returns [key, value].
	if len(result) != 2 {
		return uuid.Nil, nil
	}

	jobID, err := uuid.Parse(result[1])
	if err != nil {
		return uuid.Nil, apperrors.BadRequest("malformed job id on queue: " + result[1])
	}
	return jobID, nil
}
