package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

// Ensure RedisRepository implements DedupRepository and StateRepository
var (
	_ ports.DedupRepository = (*RedisRepository)(nil)
	_ ports.StateRepository = (*RedisRepository)(nil)
)

// RedisRepository keeps dedup markers and conversation states in Redis
type RedisRepository struct {
	client   *redis.Client
	stateTTL time.Duration // backstop expiry; logical expiry is checked on read
}

// NewRedisRepository creates a new Redis repository instance.
// State keys expire after stateTTL so abandoned conversations do not accumulate.
func NewRedisRepository(client *redis.Client, stateTTL time.Duration) *RedisRepository {
	return &RedisRepository{
		client:   client,
		stateTTL: stateTTL,
	}
}

// Ping checks the Redis connection (used by /health)
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ============================================================================
// DedupRepository Implementation
// ============================================================================

// IsDuplicate checks if a message id has already been processed
func (r *RedisRepository) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	key := buildDedupKey(messageID)

	_, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		slog.Error("Failed to check deduplication",
			"error", err,
			"message_id", messageID,
		)
		return false, fmt.Errorf("check duplicate: %w", err)
	}

	return true, nil
}

// MarkProcessed sets the marker with SETNX so only one concurrent delivery wins
func (r *RedisRepository) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	key := buildDedupKey(messageID)

	// Value is timestamp for debugging purposes
	created, err := r.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		slog.Error("Failed to mark message as processed",
			"error", err,
			"message_id", messageID,
			"ttl", ttl,
		)
		return false, fmt.Errorf("mark processed: %w", err)
	}

	slog.Debug("Message marked as processed",
		"message_id", messageID,
		"created", created,
	)
	return created, nil
}

// Release deletes the marker so the next delivery of the id is handled
func (r *RedisRepository) Release(ctx context.Context, messageID string) error {
	if err := r.client.Del(ctx, buildDedupKey(messageID)).Err(); err != nil {
		slog.Error("Failed to release dedup marker",
			"error", err,
			"message_id", messageID,
		)
		return fmt.Errorf("release marker: %w", err)
	}
	return nil
}

// ============================================================================
// StateRepository Implementation
// ============================================================================

// Get reads the user's state hash, nil when absent
func (r *RedisRepository) Get(ctx context.Context, userID string) (*domain.StateRecord, error) {
	fields, err := r.client.HGetAll(ctx, buildStateKey(userID)).Result()
	if err != nil {
		slog.Error("Failed to get user state",
			"error", err,
			"user_id", userID,
		)
		return nil, fmt.Errorf("get user state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state, err := domain.ParseConversationState(fields["state"])
	if err != nil {
		return nil, fmt.Errorf("get user state: %w", err)
	}
	updatedAt, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("get user state: %w: bad updated_at %q: %v", domain.ErrCorruptState, fields["updated_at"], err)
	}

	return &domain.StateRecord{
		UserID:    userID,
		State:     state,
		UpdatedAt: time.Unix(updatedAt, 0),
	}, nil
}

// Set writes state and timestamp atomically and refreshes the backstop expiry
func (r *RedisRepository) Set(ctx context.Context, userID string, state domain.ConversationState, at time.Time) error {
	key := buildStateKey(userID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "state", state.String(), "updated_at", at.Unix())
		if r.stateTTL > 0 {
			pipe.Expire(ctx, key, 2*r.stateTTL)
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to set user state",
			"error", err,
			"user_id", userID,
			"state", state.String(),
		)
		return fmt.Errorf("set user state: %w", err)
	}
	return nil
}

// Clear deletes the user's state
func (r *RedisRepository) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, buildStateKey(userID)).Err(); err != nil {
		slog.Error("Failed to clear user state",
			"error", err,
			"user_id", userID,
		)
		return fmt.Errorf("clear user state: %w", err)
	}
	return nil
}

// buildDedupKey constructs the Redis key for deduplication
func buildDedupKey(messageID string) string {
	return fmt.Sprintf("dedup:msg:%s", messageID)
}

// buildStateKey constructs the Redis key for a user's conversation state
func buildStateKey(userID string) string {
	return fmt.Sprintf("state:user:%s", userID)
}
