package hooks

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Notifier receives fire-and-forget events after a tree mutation commits.
// Implementations must not block the caller on subscriber behaviour and
// never report failures back; they log them.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any)
}

// Event is the envelope published to subscribers.
type Event struct {
	Name    string    `json:"event"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, string, any) {}

// LogNotifier writes each event to a zerolog logger at debug level.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, event string, payload any) {
	n.Logger.Debug().Str("event", event).Interface("payload", payload).Msg("hook")
}

// Publisher is the slice of the Redis client RedisNotifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes each event as JSON on channel "prefix:event".
type RedisNotifier struct {
	client Publisher
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

func NewRedisNotifier(client Publisher, prefix string, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redisNotifier").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Channel joins prefix and event with a single ':'. An empty prefix
// publishes on the bare event name.
func (n *RedisNotifier) Channel(event string) string {
	prefix := strings.TrimSuffix(n.prefix, ":")
	if prefix == "" {
		return event
	}
	return prefix + ":" + event
}

func (n *RedisNotifier) Notify(ctx context.Context, event string, payload any) {
	body, err := json.Marshal(Event{Name: event, Payload: payload, At: n.now()})
	if err != nil {
		n.logger.Error().Err(err).Str("event", event).Msg("failed to encode hook event")
		return
	}

	channel := n.Channel(event)
	if err := n.client.Publish(ctx, channel, body).Err(); err != nil {
		n.logger.Error().Err(err).Str("channel", channel).Msg("redis PUBLISH failed")
		return
	}
	n.logger.Debug().Str("channel", channel).Msg("redis PUBLISH")
}

// Multi fans an event out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event string, payload any) {
	for _, n := range m {
		n.Notify(ctx, event, payload)
	}
}
