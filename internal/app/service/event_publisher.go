package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerLink/internal/app/model"
)

// EventPublisher publishes link lifecycle events to NATS JetStream. All
// publishes are best-effort; callers log and move on when one fails.
type EventPublisher struct {
	js nats.JetStreamContext
}

// NewEventPublisher creates a publisher and ensures the lifecycle stream
// exists.
func NewEventPublisher(js nats.JetStreamContext) (*EventPublisher, error) {
	if _, err := js.StreamInfo(model.LinkStreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     model.LinkStreamName,
			Subjects: []string{model.LinkStreamSubject},
			MaxBytes: model.LinkStreamMaxBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("create lifecycle stream: %w", err)
		}
	}
	return &EventPublisher{js: js}, nil
}

// Publish emits a lifecycle event for the given code.
func (p *EventPublisher) Publish(eventType, code string) error {
	event := model.LinkEvent{
		ID:        uuid.New().String(),
		Code:      code,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.LinkStreamSubject, data)
	return err
}
