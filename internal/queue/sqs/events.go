package sqsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Envelope wraps one domain event on the bus. Topic selects the payload type
// (see domain.Topic*). Keep payloads small; SQS caps messages at 256KB.
type Envelope struct {
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// EventHandler processes one decoded envelope. Errors leave the message on
// the queue for redrive.
type EventHandler func(ctx context.Context, env Envelope) error

// EventProducer publishes domain events; used by the extraction pipeline and
// the contact directory, and by tests.
type EventProducer struct {
	SQS      *sqs.Client
	QueueURL string
}

func (p *EventProducer) Publish(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(Envelope{Topic: topic, Payload: raw, OccurredAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	})
	return err
}

// EventConsumer subscribes the trigger evaluator to the domain event queue.
// Its lifetime is the polling context, owned by the worker composition root.
type EventConsumer struct {
	SQS      *sqs.Client
	QueueURL string
	Options  Options
}

func (c *EventConsumer) Poll(ctx context.Context, workers int, handler EventHandler) error {
	return pollConcurrent(ctx, c.SQS, c.QueueURL, c.Options, workers, func(ctx context.Context, body []byte) error {
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			// bad payload => drop to avoid endless redrive
			return nil
		}
		return handler(ctx, env)
	})
}
