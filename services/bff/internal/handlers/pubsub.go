package handlers

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SubjectProgress carries async watch-time writes. The activity service
// drains it in batches with an idempotent applier keyed on client_ts_ms.
const SubjectProgress = "activity.progress"

var ErrAsyncPublishDisabled = errors.New("async publish is disabled")

// EventPublisher hands write requests to JetStream instead of calling the
// owning service synchronously. Callers must check Enabled and fall back to
// the synchronous client when it reports false.
type EventPublisher struct {
	js      nats.JetStreamContext
	enabled bool
}

// NewEventPublisher accepts a nil JetStream context; the resulting publisher
// simply reports itself disabled. BFF_ASYNC_WRITES=false turns it off even
// when NATS is connected.
func NewEventPublisher(js nats.JetStreamContext) *EventPublisher {
	return &EventPublisher{js: js, enabled: asyncWritesEnabled()}
}

func asyncWritesEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("BFF_ASYNC_WRITES"))) {
	case "0", "false", "no":
		return false
	}
	return true
}

func (p *EventPublisher) Enabled() bool {
	return p != nil && p.js != nil && p.enabled
}

// PublishJSON stamps the payload with a fresh event id and publishes it. The
// id is returned so the caller can hand it back to the client for
// correlation with the eventual write.
func (p *EventPublisher) PublishJSON(subject string, payload map[string]any) (string, error) {
	if !p.Enabled() {
		return "", ErrAsyncPublishDisabled
	}

	eventID := uuid.NewString()
	payload["event_id"] = eventID
	if _, ok := payload["created_at"]; !ok {
		payload["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if _, err := p.js.Publish(subject, body); err != nil {
		return "", err
	}
	return eventID, nil
}
