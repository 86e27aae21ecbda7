package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scorepipe/internal/types"
)

// Rule is the declarative routing predicate: it matches events whose source
// and detail type equal the fixed routing tags. Pure and stateless.
type Rule struct {
	Source     string
	DetailType string
}

// LowScoreRule returns the rule that routes low score events to the
// escalation queue.
func LowScoreRule() Rule {
	return Rule{Source: types.BusSource, DetailType: types.DetailTypeLowScore}
}

// Matches reports whether an event with the given metadata is routed by this
// rule.
func (r Rule) Matches(source, detailType string) bool {
	return source == r.Source && detailType == r.DetailType
}

// QueueSender is the forwarding contract the local bus needs from the
// escalation queue wrapper.
type QueueSender interface {
	Send(ctx context.Context, body string) (string, error)
}

// LocalBus is an in-process stand-in for the managed event bus, used in
// local mode and tests. It implements Publisher: each published event is
// wrapped in the bus envelope, matched against the rule, and the envelope
// forwarded unmodified to exactly one destination queue. Non-matching events
// are dropped silently; the router is a filter, not a catch-all.
type LocalBus struct {
	rule       Rule
	queue      QueueSender
	source     string
	detailType string
	logger     *slog.Logger
}

// NewLocalBus creates a LocalBus that publishes with the given tags and
// forwards matches of rule to queue.
func NewLocalBus(rule Rule, queue QueueSender, source, detailType string, logger *slog.Logger) *LocalBus {
	return &LocalBus{
		rule:       rule,
		queue:      queue,
		source:     source,
		detailType: detailType,
		logger:     logger,
	}
}

// Publish wraps the event in a bus envelope and applies the routing rule.
func (b *LocalBus) Publish(ctx context.Context, event types.ScoreEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: failed to marshal score event: %w", err)
	}

	if !b.rule.Matches(b.source, b.detailType) {
		b.logger.DebugContext(ctx, "event dropped by routing rule",
			"source", b.source,
			"detail_type", b.detailType,
		)
		return nil
	}

	envelope := types.EventEnvelope{
		ID:         uuid.New().String(),
		Source:     b.source,
		DetailType: b.detailType,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Detail:     detail,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("events: failed to marshal envelope: %w", err)
	}

	if _, err := b.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("events: failed to forward event to queue: %w", err)
	}

	return nil
}
