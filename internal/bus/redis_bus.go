package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	draftsStream      = "drafts"
	submissionsStream = "submissions"
)

// RedisBus provides Redis Streams-based messaging for downstream consumers
// (case-management sync, notification workers).
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishDraftEvent publishes a draft lifecycle change to the drafts stream
func (rb *RedisBus) PublishDraftEvent(ctx context.Context, msg DraftMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}

	fields := map[string]interface{}{
		"draft_id":      msg.DraftID,
		"incident_type": msg.IncidentType,
		"status":        msg.Status,
		"action":        msg.Action,
		"timestamp":     msg.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: draftsStream,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish draft event: %w", err)
	}

	rb.logger.Printf("Published %s event for draft %s to drafts stream", msg.Action, msg.DraftID)
	return nil
}

// PublishSubmission publishes a submission outcome to the submissions stream
func (rb *RedisBus) PublishSubmission(ctx context.Context, msg SubmissionMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}

	fields := map[string]interface{}{
		"draft_id":    msg.DraftID,
		"incident_id": msg.IncidentID,
		"result":      msg.Result,
		"error":       msg.Error,
		"timestamp":   msg.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: submissionsStream,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish submission: %w", err)
	}

	rb.logger.Printf("Published %s submission for draft %s", msg.Result, msg.DraftID)
	return nil
}

// GetStreamInfo returns information about a stream
func (rb *RedisBus) GetStreamInfo(ctx context.Context, stream string) (*redis.XInfoStream, error) {
	result := rb.client.XInfoStream(ctx, stream)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", stream, err)
	}
	return result.Val(), nil
}

// CleanupOldMessages removes old messages from streams to prevent memory issues
func (rb *RedisBus) CleanupOldMessages(ctx context.Context, stream string, maxLen int64) error {
	result := rb.client.XTrimMaxLen(ctx, stream, maxLen)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to trim stream %s: %w", stream, err)
	}

	rb.logger.Printf("Trimmed stream %s to max length %d", stream, maxLen)
	return nil
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the Redis streams
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["type"] = "redis"

	for _, stream := range []string{draftsStream, submissionsStream} {
		if info, err := rb.GetStreamInfo(ctx, stream); err == nil {
			stats[stream+"_stream"] = map[string]interface{}{
				"length":         info.Length,
				"first_entry_id": info.FirstEntry.ID,
				"last_entry_id":  info.LastEntry.ID,
			}
		}
	}

	return stats, nil
}
