package veto

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remindly/internal/domain/reminder"

	"github.com/redis/go-redis/v9"
)

var _ reminder.VetoHook = (*RedisSendCap)(nil)

// RedisSendCap is a veto hook that caps reminder emails per recipient using
// Redis sorted sets with a sliding 24-hour window. It suppresses sends to a
// member who already received the configured maximum, without touching the
// run logic. Redis failures fail open: a broken cache must not silence
// renewal reminders.
type RedisSendCap struct {
	client    *redis.Client
	maxPerDay int
	window    time.Duration
}

// NewRedisSendCap creates a new Redis-backed send cap.
func NewRedisSendCap(redisAddr, password string, db int, maxPerDay int) *RedisSendCap {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})

	return &RedisSendCap{
		client:    client,
		maxPerDay: maxPerDay,
		window:    24 * time.Hour,
	}
}

// AllowSend implements the veto contract: it returns the default decision
// unchanged unless the recipient is over the daily cap.
func (r *RedisSendCap) AllowSend(ctx context.Context, defaultAllow bool, m *reminder.Member, sub *reminder.Subscription) bool {
	if !defaultAllow {
		return false
	}

	key := fmt.Sprintf("remindly:sendcap:%s", m.Email)
	now := time.Now()
	windowStart := now.Add(-r.window)

	pipe := r.client.Pipeline()

	// Remove expired entries (outside the sliding window)
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))

	// Count remaining entries in the window
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("send cap check failed, allowing send", "recipient", m.Email, "error", err)
		return true
	}

	if countCmd.Val() >= int64(r.maxPerDay) {
		slog.Info("send cap reached, vetoing reminder",
			"recipient", m.Email,
			"subscription_id", sub.ID,
			"max_per_day", r.maxPerDay,
		)
		return false
	}

	member := redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d:%s", now.UnixNano(), sub.ID),
	}
	pipe2 := r.client.Pipeline()
	pipe2.ZAdd(ctx, key, member)
	pipe2.Expire(ctx, key, r.window+time.Minute) // TTL slightly longer than window for cleanup

	if _, err := pipe2.Exec(ctx); err != nil {
		slog.Error("failed to record send cap entry", "recipient", m.Email, "error", err)
	}

	return true
}

// Close closes the Redis connection.
func (r *RedisSendCap) Close() error {
	return r.client.Close()
}
