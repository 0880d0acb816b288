package notify

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
	"github.com/goccy/go-json"
)

const (
	// StatusStagingLoaded marks a completed warehouse load
	StatusStagingLoaded = "staging_loaded"
	// TriggerMatchDataReady is what the transform step listens for
	TriggerMatchDataReady = "match_data_ready"
)

// Event is the completion message body
type Event struct {
	Status  string `json:"status"`
	Trigger string `json:"trigger"`
}

// NewEvent returns the standard "new data loaded" event
func NewEvent() Event {
	return Event{Status: StatusStagingLoaded, Trigger: TriggerMatchDataReady}
}

// Publisher announces that new staging data is available
type Publisher interface {
	Publish(ctx context.Context, e Event, attrs Attributes) error
}

// Attributes ride along as message attributes, outside the body
type Attributes struct {
	RunID string
	Rows  int
}

// PublishError means the completion event was not acknowledged
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// PubSub publishes events to one topic
type PubSub struct {
	topic *pubsub.Topic
}

// NewPubSub binds a publisher to topicID on client
func NewPubSub(client *pubsub.Client, topicID string) *PubSub {
	return &PubSub{topic: client.Topic(topicID)}
}

// Publish sends e and waits for the server ack
func (p *PubSub) Publish(ctx context.Context, e Event, attrs Attributes) error {
	data, err := json.Marshal(e)
	if err != nil {
		return &PublishError{Topic: p.topic.ID(), Err: err}
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": attrs.RunID,
			"rows":   strconv.Itoa(attrs.Rows),
		},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return &PublishError{Topic: p.topic.ID(), Err: err}
	}
	return nil
}

// Stop flushes pending messages and releases the topic's goroutines
func (p *PubSub) Stop() {
	p.topic.Stop()
}
