package sqsqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Options tune one SQS polling consumer.
type Options struct {
	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

// handleFunc processes one raw message body. A nil error deletes the message;
// an error leaves it for SQS redrive/DLQ.
type handleFunc func(ctx context.Context, body []byte) error

// pollConcurrent drains a queue with a worker pool. Bodies that are empty are
// deleted immediately so poison messages don't loop forever. It returns when
// ctx is canceled, after letting in-flight handlers finish.
func pollConcurrent(ctx context.Context, client *sqs.Client, queueURL string, opts Options, workers int, handle handleFunc) error {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan types.Message, workers*2)
	errCh := make(chan error, 1)

	sendErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	del := func(m types.Message) {
		_, _ = client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &queueURL,
			ReceiptHandle: m.ReceiptHandle,
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if m.Body == nil {
					del(m)
					continue
				}
				if err := handle(ctx, []byte(*m.Body)); err == nil {
					del(m)
				} else {
					slog.Error("sqs handler error", "err", err)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)

		for {
			if ctx.Err() != nil {
				sendErr(ctx.Err())
				return
			}

			out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            &queueURL,
				MaxNumberOfMessages: opts.MaxMessages,
				WaitTimeSeconds:     opts.WaitTimeSeconds,
				VisibilityTimeout:   opts.VisibilityTimeout,
			})
			if err != nil {
				slog.Error("sqs receive message failed", "err", err)
				time.Sleep(500 * time.Millisecond)
				continue
			}

			for _, m := range out.Messages {
				select {
				case jobs <- m:
				case <-ctx.Done():
					sendErr(ctx.Err())
					return
				}
			}
		}
	}()

	err := <-errCh
	wg.Wait()
	return err
}

func str(s string) *string { return &s }
