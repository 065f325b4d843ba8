package sqsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// StatusEvent is the internal envelope for provider delivery callbacks on
// their way from the webhook ingress to the processor.
type StatusEvent struct {
	Provider      string    `json:"provider"`
	ProviderMsgID string    `json:"providerMsgId"`
	Status        string    `json:"status"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

type StatusProducer struct {
	SQS      *sqs.Client
	QueueURL string
}

func (p *StatusProducer) Enqueue(ctx context.Context, ev StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	})
	return err
}

type StatusHandler func(ctx context.Context, ev StatusEvent) error

type StatusConsumer struct {
	SQS      *sqs.Client
	QueueURL string
	Options  Options
}

func (c *StatusConsumer) Poll(ctx context.Context, workers int, handler StatusHandler) error {
	return pollConcurrent(ctx, c.SQS, c.QueueURL, c.Options, workers, func(ctx context.Context, body []byte) error {
		var ev StatusEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil
		}
		return handler(ctx, ev)
	})
}
