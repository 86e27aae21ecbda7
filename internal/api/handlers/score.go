// Package handlers contains the domain HTTP handlers for the scorepipe API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"scorepipe/internal/core"
	"scorepipe/internal/types"
)

// EventDispatcher is the fire-and-forget publish contract the handler
// consumes. Dispatch must return without awaiting the publish outcome.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event types.ScoreEvent)
}

// ScoreHandler validates the score supplied on an inbound request and
// escalates failures through the event dispatcher. It holds only read-only
// shared handles and is safe for concurrent use.
type ScoreHandler struct {
	dispatcher  EventDispatcher
	threshold   int
	producerTag string
	logger      *slog.Logger

	// Injected for deterministic tests.
	now func() time.Time
}

// NewScoreHandler creates a ScoreHandler escalating scores below threshold.
func NewScoreHandler(dispatcher EventDispatcher, threshold int, producerTag string, logger *slog.Logger) *ScoreHandler {
	return &ScoreHandler{
		dispatcher:  dispatcher,
		threshold:   threshold,
		producerTag: producerTag,
		logger:      logger,
		now:         time.Now,
	}
}

// RegisterRoutes mounts the score endpoint.
func (h *ScoreHandler) RegisterRoutes(r chi.Router) {
	r.Get("/score", h.HandleScore)
}

// validationPassedResponse is the body returned when the score passes.
type validationPassedResponse struct {
	Message   string `json:"message"`
	Score     int    `json:"score"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// validationFailedResponse is the body returned when the score fails
// validation. Score echoes the original token, or "missing".
type validationFailedResponse struct {
	Message   string `json:"message"`
	Score     string `json:"score"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// outcome is the result of applying the validation rule to one score token.
type outcome struct {
	valid  bool
	parsed int    // meaningful only when valid
	score  string // event/score field: original token or "missing"
	reason string // meaningful only when invalid
}

// evaluate applies the validation rule:
//   - absent or empty token: invalid, score "missing", reason
//     ReasonScoreMissing.
//   - non-numeric token: invalid, original token preserved, reason
//     ReasonScoreBelowMin (parse failure is invalid-but-not-missing).
//   - parsed integer below threshold: invalid, reason ReasonScoreBelowMin.
//   - otherwise: valid.
func evaluate(token string, threshold int) outcome {
	if token == "" {
		return outcome{score: types.ScoreMissing, reason: types.ReasonScoreMissing}
	}

	n, err := strconv.Atoi(token)
	if err != nil {
		return outcome{score: token, reason: types.ReasonScoreBelowMin}
	}

	if n < threshold {
		return outcome{score: token, reason: types.ReasonScoreBelowMin}
	}

	return outcome{valid: true, parsed: n, score: token}
}

// HandleScore implements GET /api/score?score=<token>.
//
// Validation failure is a normal branch, not an error: the response is
// HTTP 200 either way, and exactly one escalation event is dispatched when
// validation fails. The dispatch is fire-and-forget; an escalation-path
// outage never degrades this response. Unexpected faults surface as 500
// through the chassis without publishing an event.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("score")
	now := h.now().UTC().Format(time.RFC3339)

	result := evaluate(token, h.threshold)

	if result.valid {
		h.logger.InfoContext(ctx, "score validation passed", "score", result.parsed)

		core.JSON(w, r, http.StatusOK, validationPassedResponse{
			Message:   "Score validation passed",
			Score:     result.parsed,
			Status:    "success",
			Timestamp: now,
		})
		return
	}

	h.logger.InfoContext(ctx, "score validation failed, escalating",
		"score", result.score,
		"reason", result.reason,
	)

	h.dispatcher.Dispatch(ctx, types.ScoreEvent{
		Source:        h.producerTag,
		Score:         result.score,
		Timestamp:     now,
		CorrelationID: types.GetRequestID(ctx),
		Reason:        result.reason,
	})

	core.JSON(w, r, http.StatusOK, validationFailedResponse{
		Message:   "Score validation failed - event sent to processing pipeline",
		Score:     result.score,
		Action:    "escalation event published",
		Timestamp: now,
	})
}
