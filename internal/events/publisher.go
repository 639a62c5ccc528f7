// Package events publishes auto-apply activity on Redis pub/sub so the
// gateway can push it to the browser over SSE.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/pacing"
)

// Channel names.
const (
	ChannelApplyState  = "EVENT_APPLY_STATE"
	ChannelPlanCreated = "EVENT_PLAN_CREATED"
)

// publisher is the subset of *redis.Client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Publisher sends events for one user's session.
type Publisher struct {
	rdb    publisher
	userID string
}

// NewPublisher returns a Publisher tagging every event with userID.
func NewPublisher(rdb publisher, userID string) *Publisher {
	return &Publisher{rdb: rdb, userID: userID}
}

type plannedItem struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	Board       string    `json:"board"`
	PlannedTime time.Time `json:"plannedTime"`
}

// PublishPlan announces newly planned items.
func (p *Publisher) PublishPlan(ctx context.Context, items []pacing.ScheduledItem) error {
	planned := make([]plannedItem, 0, len(items))
	for _, it := range items {
		planned = append(planned, plannedItem{ID: it.ID, JobID: it.JobID, Board: it.Board, PlannedTime: it.PlannedTime})
	}
	return p.publish(ctx, ChannelPlanCreated, map[string]any{
		"type":   ChannelPlanCreated,
		"userId": p.userID,
		"items":  planned,
	})
}

// PublishTransition announces one state change.
func (p *Publisher) PublishTransition(ctx context.Context, tr apply.Transition) error {
	event := map[string]any{
		"type":            ChannelApplyState,
		"userId":          p.userID,
		"scheduledItemId": tr.ID,
		"from":            string(tr.From),
		"to":              string(tr.To),
		"at":              tr.At.UTC().Format(time.RFC3339),
	}
	if tr.Reason != "" {
		event["reason"] = tr.Reason
	}
	return p.publish(ctx, ChannelApplyState, event)
}

func (p *Publisher) publish(ctx context.Context, channel string, event map[string]any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
