package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	message []byte
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.sent = append(f.sent, published{channel: channel, message: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func TestRedisNotifier_PublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	n := NewRedisNotifier(pub, "cms:", zerolog.Nop())
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n.now = func() time.Time { return at }

	n.Notify(context.Background(), "post/postCreate", map[string]string{"id": "42"})

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "cms:post/postCreate", pub.sent[0].channel)

	var got struct {
		Event   string            `json:"event"`
		Payload map[string]string `json:"payload"`
		At      time.Time         `json:"at"`
	}
	require.NoError(t, json.Unmarshal(pub.sent[0].message, &got))
	assert.Equal(t, "post/postCreate", got.Event)
	assert.Equal(t, "42", got.Payload["id"])
	assert.True(t, at.Equal(got.At))
}

func TestRedisNotifier_ChannelSeparator(t *testing.T) {
	for _, tc := range []struct {
		prefix string
		want   string
	}{
		{prefix: "cms", want: "cms:post/postCreate"},
		{prefix: "cms:", want: "cms:post/postCreate"},
		{prefix: "", want: "post/postCreate"},
	} {
		n := NewRedisNotifier(&fakePublisher{}, tc.prefix, zerolog.Nop())
		assert.Equal(t, tc.want, n.Channel("post/postCreate"), "prefix %q", tc.prefix)
	}
}

func TestRedisNotifier_SwallowsErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	n := NewRedisNotifier(pub, "", zerolog.Nop())

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "asset/postDelete", nil)
	})
	assert.Empty(t, pub.sent)
}

type countingNotifier struct{ events []string }

func (c *countingNotifier) Notify(ctx context.Context, event string, payload any) {
	c.events = append(c.events, event)
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &countingNotifier{}, &countingNotifier{}
	Multi{a, Nop{}, b}.Notify(context.Background(), "tag/postMove", nil)

	assert.Equal(t, []string{"tag/postMove"}, a.events)
	assert.Equal(t, []string{"tag/postMove"}, b.events)
}
