// Package events provides the escalation event publish path: an EventBridge
// publisher guarded by a circuit breaker, a fire-and-forget dispatcher that
// decouples publishing from the synchronous request path, and the routing
// rule that forwards matched events to the escalation queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/sony/gobreaker/v2"

	"scorepipe/internal/types"
)

// Publisher is the escalation event publish contract consumed by the score
// validator (through the dispatcher). Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event types.ScoreEvent) error
}

// EventBridgeAPI abstracts the PutEvents operation for testability.
// Production code uses the *eventbridge.Client from aws-sdk-go-v2.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// BusPublisher publishes escalation events to an EventBridge bus. Calls are
// routed through a circuit breaker so a sustained bus outage fails fast
// instead of tying up publish goroutines; the synchronous request path is
// never affected either way because publishing is dispatched detached.
type BusPublisher struct {
	client     EventBridgeAPI
	busName    string
	source     string
	detailType string
	breaker    *gobreaker.CircuitBreaker[*eventbridge.PutEventsOutput]
	logger     *slog.Logger
}

// NewBusPublisher creates a BusPublisher targeting the named bus with the
// fixed routing tags.
func NewBusPublisher(client EventBridgeAPI, busName, source, detailType string, logger *slog.Logger) *BusPublisher {
	cb := gobreaker.NewCircuitBreaker[*eventbridge.PutEventsOutput](gobreaker.Settings{
		Name:        "eventbridge-publish",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &BusPublisher{
		client:     client,
		busName:    busName,
		source:     source,
		detailType: detailType,
		breaker:    cb,
		logger:     logger,
	}
}

// Publish serializes the event as the detail body of a single bus entry and
// sends it. An entry-level failure reported by the bus is surfaced as an
// error even when the API call itself succeeded.
func (p *BusPublisher) Publish(ctx context.Context, event types.ScoreEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: failed to marshal score event: %w", err)
	}

	out, err := p.breaker.Execute(func() (*eventbridge.PutEventsOutput, error) {
		return p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
			Entries: []ebtypes.PutEventsRequestEntry{
				{
					Source:       aws.String(p.source),
					DetailType:   aws.String(p.detailType),
					Detail:       aws.String(string(detail)),
					EventBusName: aws.String(p.busName),
				},
			},
		})
	})
	if err != nil {
		return fmt.Errorf("events: failed to put event on bus %s: %w", p.busName, err)
	}

	if out.FailedEntryCount > 0 {
		entry := out.Entries[0]
		return fmt.Errorf("events: bus rejected entry: %s (%s)",
			aws.ToString(entry.ErrorMessage), aws.ToString(entry.ErrorCode))
	}

	p.logger.InfoContext(ctx, "escalation event published",
		"bus", p.busName,
		"reason", event.Reason,
		"score", event.Score,
		"correlation_id", event.CorrelationID,
	)

	return nil
}
