package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/pacing"
)

type message struct {
	channel string
	payload map[string]any
}

type fakeRedis struct {
	sent []message
	err  error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, msg any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, msg)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	var payload map[string]any
	_ = json.Unmarshal(msg.([]byte), &payload)
	f.sent = append(f.sent, message{channel: channel, payload: payload})
	cmd.SetVal(1)
	return cmd
}

var at = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func TestPublishPlan(t *testing.T) {
	rdb := &fakeRedis{}
	p := NewPublisher(rdb, "u1")

	err := p.PublishPlan(context.Background(), []pacing.ScheduledItem{
		{ID: "a", JobID: "j1", Board: "linkedin", PlannedTime: at},
		{ID: "b", JobID: "j2", Board: "indeed", PlannedTime: at.Add(time.Minute)},
	})
	require.NoError(t, err)
	require.Len(t, rdb.sent, 1)

	m := rdb.sent[0]
	assert.Equal(t, ChannelPlanCreated, m.channel)
	assert.Equal(t, "u1", m.payload["userId"])
	items := m.payload["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "j1", items[0].(map[string]any)["jobId"])
}

func TestPublishTransition(t *testing.T) {
	rdb := &fakeRedis{}
	p := NewPublisher(rdb, "u1")

	require.NoError(t, p.PublishTransition(context.Background(), apply.Transition{
		ID: "a", From: apply.StateSending, To: apply.StateFailed, At: at, Reason: "captcha",
	}))
	require.NoError(t, p.PublishTransition(context.Background(), apply.Transition{
		ID: "b", From: apply.StatePlanned, To: apply.StateSending, At: at,
	}))
	require.Len(t, rdb.sent, 2)

	first := rdb.sent[0].payload
	assert.Equal(t, ChannelApplyState, rdb.sent[0].channel)
	assert.Equal(t, "a", first["scheduledItemId"])
	assert.Equal(t, "SENDING", first["from"])
	assert.Equal(t, "FAILED", first["to"])
	assert.Equal(t, "2026-03-02T09:30:00Z", first["at"])
	assert.Equal(t, "captcha", first["reason"])

	_, hasReason := rdb.sent[1].payload["reason"]
	assert.False(t, hasReason)
}

func TestPublish_Error(t *testing.T) {
	rdb := &fakeRedis{err: errors.New("connection refused")}
	err := NewPublisher(rdb, "u1").PublishTransition(context.Background(), apply.Transition{ID: "a"})
	assert.ErrorContains(t, err, "publish EVENT_APPLY_STATE")
	assert.ErrorContains(t, err, "connection refused")
}
