package services

import (
	"context"
	"encoding/json"
	"time"

	"hotel-price-tracker/utils"

	"github.com/redis/go-redis/v9"
)

// Notifier shows an alert. Delivery is best effort; failures are only logged.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// LogNotifier writes alerts to the log
type LogNotifier struct {
	logger *utils.Logger
}

func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) {
	n.logger.Info("ALERT %s | %s", title, body)
}

// DefaultAlertChannel is the pub/sub channel RedisNotifier publishes on
const DefaultAlertChannel = "tracker:alerts"

type alert struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Time  time.Time `json:"time"`
}

// RedisNotifier publishes alerts as JSON so any subscriber (desktop agent,
// chat bridge) can display them
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *utils.Logger
}

func NewRedisNotifier(client *redis.Client, channel string, logger *utils.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultAlertChannel
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, title, body string) {
	payload, err := json.Marshal(alert{Title: title, Body: body, Time: time.Now()})
	if err != nil {
		n.logger.Warn("Failed to encode alert: %v", err)
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("Failed to publish alert on %s: %v", n.channel, err)
	}
}

// MultiNotifier fans an alert out to several notifiers
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, title, body string) {
	for _, n := range m {
		n.Notify(ctx, title, body)
	}
}
