package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"dataload-service/internal/models"
)

const (
	DefaultQueueKey = "dataload:queue"
	jobKeyPrefix    = "dataload:job:"
	DescriptorTTL   = 24 * time.Hour
)

var (
	// ErrEmpty is returned by Dequeue when nothing arrived before the timeout.
	ErrEmpty = errors.New("queue empty")
	// ErrDescriptorMissing means the queued id has no stored descriptor (expired or deleted).
	ErrDescriptorMissing = errors.New("job descriptor missing")
)

// Descriptor is everything a worker needs to run one upload session.
type Descriptor struct {
	SessionID        uuid.UUID       `json:"session_id"`
	TenantID         string          `json:"tenant_id"`
	LoadType         models.LoadType `json:"load_type"`
	StorageLocator   string          `json:"storage_locator"`
	OriginalFilename string          `json:"original_filename"`
	SubmittedBy      string          `json:"submitted_by,omitempty"`
}

// DescriptorFor rebuilds the descriptor of a stored session.
func DescriptorFor(s *models.UploadSession) Descriptor {
	return Descriptor{
		SessionID:        s.ID,
		TenantID:         s.TenantID,
		LoadType:         s.LoadType,
		StorageLocator:   s.StorageLocator,
		OriginalFilename: s.OriginalFilename,
		SubmittedBy:      s.SubmittedBy,
	}
}

// RedisQueue is a FIFO of session ids in a redis list; descriptors live next to it with a TTL.
type RedisQueue struct {
	client   *redis.Client
	queueKey string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, queueKey: DefaultQueueKey}
}

func jobKey(id uuid.UUID) string {
	return jobKeyPrefix + id.String()
}

// Enqueue stores the descriptor and appends its session id to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, d Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode job descriptor: %w", err)
	}
	if err := q.client.Set(ctx, jobKey(d.SessionID), data, DescriptorTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job descriptor: %w", err)
	}
	if err := q.client.RPush(ctx, q.queueKey, d.SessionID.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Descriptor, error) {
	res, err := q.client.BLPop(ctx, timeout, q.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, ErrEmpty
	}

	id, err := uuid.Parse(res[1])
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q on queue: %w", res[1], err)
	}
	val, err := q.client.Get(ctx, jobKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrDescriptorMissing, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job descriptor %s: %w", id, err)
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		return nil, fmt.Errorf("failed to decode job descriptor %s: %w", id, err)
	}
	return &d, nil
}

// Forget drops a finished job's descriptor.
func (q *RedisQueue) Forget(ctx context.Context, sessionID uuid.UUID) error {
	return q.client.Del(ctx, jobKey(sessionID)).Err()
}
