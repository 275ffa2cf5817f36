package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	chatlogKeyPrefix = "chatlog:"
	defaultDayTTL    = 30 * 24 * time.Hour
	defaultRecentCap = 200
)

// RedisStore keeps one list per conversation day plus a capped list of
// recent entries used to rebuild sliding windows after a restart.
type RedisStore struct {
	redis     *redis.Client
	tracer    trace.Tracer
	dayTTL    time.Duration
	recentCap int64
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		return nil
	}
	return &RedisStore{
		redis:     redisClient,
		tracer:    otel.Tracer("chatmod.internal.chatlog.redis"),
		dayTTL:    defaultDayTTL,
		recentCap: defaultRecentCap,
	}
}

func (s *RedisStore) Append(ctx context.Context, entry Entry) error {
	if s == nil || s.redis == nil {
		return nil
	}
	entry, err := prepare(entry)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("chatlog: marshal entry: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "chatlog.redis.append")
	defer span.End()

	dayKey := redisDayKey(entry.ConversationID, entry.Timestamp)
	recentKey := redisRecentKey(entry.ConversationID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, dayKey, data)
	pipe.Expire(ctx, dayKey, s.dayTTL)
	pipe.RPush(ctx, recentKey, data)
	pipe.LTrim(ctx, recentKey, -s.recentCap, -1)
	pipe.Expire(ctx, recentKey, s.dayTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chatlog: append entry: %w", err)
	}
	return nil
}

func (s *RedisStore) ListDay(ctx context.Context, conversationID string, day time.Time) ([]Entry, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "chatlog.redis.list_day")
	defer span.End()
	return s.lrange(ctx, span, redisDayKey(conversationID, day), 0)
}

func (s *RedisStore) Recent(ctx context.Context, conversationID string, n int) ([]Entry, error) {
	if s == nil || s.redis == nil || n <= 0 {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "chatlog.redis.recent")
	defer span.End()
	return s.lrange(ctx, span, redisRecentKey(conversationID), int64(n))
}

func (s *RedisStore) lrange(ctx context.Context, span trace.Span, key string, limit int64) ([]Entry, error) {
	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, key, start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("chatlog: list entries: %w", err)
	}

	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func redisDayKey(conversationID string, day time.Time) string {
	return chatlogKeyPrefix + conversationID + ":" + dayKey(day)
}

func redisRecentKey(conversationID string) string {
	return chatlogKeyPrefix + conversationID + ":recent"
}
