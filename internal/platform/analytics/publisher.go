// Package analytics is a fire-and-forget publisher for business events.
// Publishing never blocks or fails the request that produced the event.
package analytics

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// One subject per event type so downstream consumers can filter on subject
// alone.
const (
	SubjectPlaybackStarted     = "analytics.playback.started"
	SubjectLessonCompleted     = "analytics.lesson.completed"
	SubjectBundleCreated       = "analytics.bundle.created"
	SubjectBundleUpdated       = "analytics.bundle.updated"
	SubjectCatalogCourseViewed = "analytics.catalog.course_viewed"
)

// Event is the envelope shared by every analytics.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher writes events to JetStream. A nil Publisher and one built with a
// nil JetStream context are both no-op stubs, so callers never guard.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	return &Publisher{js: js, log: log}
}

// Publish sends one event asynchronously. Failures are logged and dropped.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	})
	if err != nil {
		p.log.Warn("analytics: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("analytics: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
