package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vietddude/syncer/internal/infra/redis"
)

// Progress is the payload published once per batch and on terminal
// session transitions.
type Progress struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	BatchNumber    int    `json:"batch_number"`
	PagesProcessed int    `json:"pages_processed"`
	ItemsFound     int    `json:"items_found"`
	ItemsCreated   int    `json:"items_created"`
	ItemsUpdated   int    `json:"items_updated"`
	ItemsExisting  int    `json:"items_existing"`
	ErrorsCount    int    `json:"errors_count"`
}

// Notifier delivers sync progress to interested consumers.
type Notifier interface {
	Notify(ctx context.Context, progress Progress) error
}

// LogNotifier writes progress to the structured log. Used when no
// pub/sub sink is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, progress Progress) error {
	n.logger.Info("sync progress",
		"session_id", progress.SessionID,
		"status", progress.Status,
		"batch_number", progress.BatchNumber,
		"items_found", progress.ItemsFound,
		"items_created", progress.ItemsCreated,
		"items_updated", progress.ItemsUpdated,
		"items_existing", progress.ItemsExisting,
		"errors_count", progress.ErrorsCount,
	)
	return nil
}

// RedisNotifier publishes progress as JSON on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "sync:progress"
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, progress Progress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	return n.client.Publish(ctx, n.channel, payload)
}

// MultiNotifier fans a notification out to several sinks. Delivery
// failures on one sink do not block the others.
type MultiNotifier struct {
	sinks []Notifier
}

func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks}
}

func (n *MultiNotifier) Notify(ctx context.Context, progress Progress) error {
	var firstErr error
	for _, sink := range n.sinks {
		if err := sink.Notify(ctx, progress); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
