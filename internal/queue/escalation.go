// Package queue wraps the SQS escalation queue behind the semantic contract
// the pipeline depends on: publish with immediate visibility, bounded batch
// receive with long polling, per-message acknowledge, and explicit negative
// acknowledge via a zero visibility timeout. Attempt counting and
// dead-lettering are the queue's server-side redrive policy; this wrapper
// only surfaces the delivery-attempt counter to consumers.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS caps a single receive at 10 messages and long polling at 20 seconds.
const (
	maxReceiveBatch = 10
	maxLongPoll     = 20 * time.Second
)

// SQSAPI abstracts the SQS operations the wrapper uses, for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Message is a delivered queue message plus its delivery metadata. The
// receipt handle is the lock on the current visibility window; it is only
// valid until the window expires.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string

	// Attempt is the delivery-attempt counter maintained by the queue
	// (1 on first delivery). Zero when the queue did not report it.
	Attempt int

	// SentAt is when the message was enqueued. Zero when not reported.
	// Used for queue lag metrics.
	SentAt time.Time
}

// EscalationQueue wraps one SQS queue.
type EscalationQueue struct {
	client   SQSAPI
	queueURL string
	logger   *slog.Logger
}

// NewEscalationQueue creates a wrapper around the queue at queueURL.
func NewEscalationQueue(client SQSAPI, queueURL string, logger *slog.Logger) *EscalationQueue {
	return &EscalationQueue{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// URL returns the wrapped queue URL.
func (q *EscalationQueue) URL() string {
	return q.queueURL
}

// Send publishes a message body. The message becomes visible immediately.
// Returns the queue-assigned message ID.
func (q *EscalationQueue) Send(ctx context.Context, body string) (string, error) {
	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("queue: failed to send message to %s: %w", q.queueURL, err)
	}

	return aws.ToString(out.MessageId), nil
}

// ReceiveBatch pulls up to maxItems messages, waiting up to maxWait for the
// batch to fill (long polling). Delivered messages are invisible to other
// consumers for the queue's visibility timeout. maxItems is clamped to the
// SQS limit of 10 and maxWait to the long-poll cap of 20 seconds.
func (q *EscalationQueue) ReceiveBatch(ctx context.Context, maxItems int, maxWait time.Duration) ([]Message, error) {
	if maxItems < 1 {
		maxItems = 1
	}
	if maxItems > maxReceiveBatch {
		maxItems = maxReceiveBatch
	}
	if maxWait < 0 {
		maxWait = 0
	}
	if maxWait > maxLongPoll {
		maxWait = maxLongPoll
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(maxItems),
		WaitTimeSeconds:     int32(maxWait.Seconds()),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			sqstypes.MessageSystemAttributeNameSentTimestamp,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: failed to receive from %s: %w", q.queueURL, err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		}

		if v, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				msg.Attempt = n
			}
		}
		if v, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameSentTimestamp)]; ok {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				msg.SentAt = time.UnixMilli(ms)
			}
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

// Ack acknowledges successful processing: the message is removed from the
// queue and will not be redelivered.
func (q *EscalationQueue) Ack(ctx context.Context, msg Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("queue: failed to ack message %s: %w", msg.ID, err)
	}
	return nil
}

// Nack reports failed processing by zeroing the message's visibility timeout,
// making it immediately available for redelivery. Once the delivery-attempt
// counter exceeds the queue's redrive threshold, the queue moves the message
// to the dead-letter sink instead.
func (q *EscalationQueue) Nack(ctx context.Context, msg Message) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(msg.ReceiptHandle),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("queue: failed to nack message %s: %w", msg.ID, err)
	}

	q.logger.InfoContext(ctx, "message returned for redelivery",
		"message_id", msg.ID,
		"attempt", msg.Attempt,
	)

	return nil
}
