package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dwsmith1983/narrator/pkg/types"
)

var _ Notifier = (*SQSNotifier)(nil)

// maxLongPoll is the SQS ceiling for ReceiveMessage WaitTimeSeconds.
const maxLongPoll = 20 * time.Second

// SQSAPI is the subset of the SQS client used by SQSNotifier.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSNotifier carries wake signals between processes sharing one durable
// queue store. Signals for other queue types received by a waiter are
// handed to the in-process notifier so local workers still wake.
type SQSNotifier struct {
	client   SQSAPI
	queueURL string
	local    *ChannelNotifier
	logger   *slog.Logger
}

// NewSQSNotifier creates a notifier publishing to and polling queueURL.
func NewSQSNotifier(client SQSAPI, queueURL string, logger *slog.Logger) *SQSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSNotifier{
		client:   client,
		queueURL: queueURL,
		local:    NewChannelNotifier(),
		logger:   logger,
	}
}

// Notify wakes local waiters and publishes the signal to SQS.
func (n *SQSNotifier) Notify(ctx context.Context, qt types.QueueType) {
	n.local.Notify(ctx, qt)
	_, err := n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &n.queueURL,
		MessageBody: aws.String(string(qt)),
	})
	if err != nil {
		n.logger.Warn("failed to publish wake signal", "queue", qt, "error", err)
	}
}

// Wait long-polls SQS until a signal for qt arrives or the timeout elapses.
func (n *SQSNotifier) Wait(ctx context.Context, qt types.QueueType, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if n.tryLocal(qt) {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		poll := min(remaining, maxLongPoll)
		woke, err := n.receive(ctx, qt, poll)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.Warn("failed to receive wake signal", "queue", qt, "error", err)
			return n.local.Wait(ctx, qt, time.Until(deadline))
		}
		if woke {
			return nil
		}
	}
}

func (n *SQSNotifier) tryLocal(qt types.QueueType) bool {
	select {
	case <-n.local.signal(qt):
		return true
	default:
		return false
	}
}

func (n *SQSNotifier) receive(ctx context.Context, qt types.QueueType, poll time.Duration) (bool, error) {
	secs := int32(poll / time.Second)
	if secs < 1 {
		secs = 1
	}
	out, err := n.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &n.queueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     secs,
	})
	if err != nil {
		return false, err
	}

	woke := false
	for _, msg := range out.Messages {
		if _, err := n.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &n.queueURL,
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			n.logger.Warn("failed to delete wake signal", "error", err)
		}
		body := types.QueueType(aws.ToString(msg.Body))
		if body == qt {
			woke = true
			continue
		}
		n.local.Notify(ctx, body)
	}
	return woke, nil
}
