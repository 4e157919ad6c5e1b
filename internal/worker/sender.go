package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailcast/internal/dispatch"
	"github.com/sungwon/mailcast/internal/metrics"
	"github.com/sungwon/mailcast/internal/provider"
	"github.com/sungwon/mailcast/internal/storage"
)

// Sender is the single consumer of the dispatch channel. Exactly one
// Sender runs per process; with one consumer, "at most one send attempt
// per request" follows from the conditional status transitions alone.
type Sender struct {
	ch        *dispatch.Channel
	limiter   *dispatch.Limiter
	queries   storage.Querier
	provider  provider.Provider
	fromEmail string
	publicURL string
	log       zerolog.Logger
}

// NewSender creates a Sender. publicURL, when non-empty, is the base
// URL for the open-tracking pixel injected into outgoing content.
func NewSender(
	ch *dispatch.Channel,
	limiter *dispatch.Limiter,
	queries storage.Querier,
	p provider.Provider,
	fromEmail string,
	publicURL string,
	log zerolog.Logger,
) *Sender {
	return &Sender{
		ch:        ch,
		limiter:   limiter,
		queries:   queries,
		provider:  p,
		fromEmail: fromEmail,
		publicURL: publicURL,
		log:       log,
	}
}

// Run drains the dispatch channel until the context is cancelled,
// acquiring one rate-limiter slot per task.
func (s *Sender) Run(ctx context.Context) {
	s.log.Info().Str("provider", s.provider.GetName()).Msg("sender worker started")

	for {
		task, err := s.ch.Dequeue(ctx)
		if err != nil {
			s.log.Info().Msg("sender worker stopping")
			return
		}
		if err := s.limiter.Acquire(ctx); err != nil {
			return
		}
		s.process(ctx, task)
	}
}

// process performs one send attempt. The request row is re-read first:
// a row cancelled while the task sat in the channel is skipped, not
// sent, and a row whose insert was rolled back is acknowledged as an
// orphan.
func (s *Sender) process(ctx context.Context, task dispatch.Task) {
	req, err := s.queries.GetEmailRequestByID(ctx, task.RequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Int64("request_id", task.RequestID).Msg("orphaned task, request not found")
			metrics.SendsTotal.WithLabelValues("skipped").Inc()
			return
		}
		s.log.Error().Err(err).Int64("request_id", task.RequestID).Msg("failed to read request before send")
		metrics.SendsTotal.WithLabelValues("skipped").Inc()
		return
	}

	if req.Status != storage.RequestStatusPending {
		s.log.Debug().
			Int64("request_id", req.ID).
			Str("status", string(req.Status)).
			Msg("skipping request no longer pending")
		metrics.SendsTotal.WithLabelValues("skipped").Inc()
		return
	}

	msg := &provider.Message{
		ID:        strconv.FormatInt(req.ID, 10),
		From:      s.fromEmail,
		Recipient: task.Recipient,
		Subject:   task.Subject,
		Content:   s.withTrackingPixel(task.Content, req.ID),
	}

	sendStart := time.Now()
	result, sendErr := s.provider.Send(ctx, msg)
	sendDuration := time.Since(sendStart)
	metrics.SendDuration.Observe(sendDuration.Seconds())

	if sendErr != nil {
		s.recordFailure(ctx, req.ID, sendErr)
		return
	}

	s.log.Info().
		Int64("request_id", req.ID).
		Str("provider", s.provider.GetName()).
		Str("provider_message_id", result.ProviderMessageID).
		Int64("duration_ms", sendDuration.Milliseconds()).
		Msg("email sent")

	updated, err := s.queries.MarkEmailRequestSent(ctx, storage.MarkEmailRequestSentParams{
		ID:                req.ID,
		ProviderMessageID: result.ProviderMessageID,
	})
	if err != nil {
		s.log.Error().Err(err).Int64("request_id", req.ID).Msg("failed to mark request sent")
	} else if !updated {
		// The row left pending while the send was in flight, so the
		// message id lands only in the result log below.
		s.log.Warn().
			Int64("request_id", req.ID).
			Str("provider_message_id", result.ProviderMessageID).
			Msg("request cancelled during send, message id kept in result log only")
	}

	raw, _ := json.Marshal(map[string]string{
		"provider":            s.provider.GetName(),
		"provider_message_id": result.ProviderMessageID,
	})
	if _, err := s.queries.AppendEmailResult(ctx, storage.AppendEmailResultParams{
		RequestID: req.ID,
		Status:    storage.ResultStatusSent,
		Raw:       pgtype.Text{String: string(raw), Valid: true},
	}); err != nil {
		s.log.Error().Err(err).Int64("request_id", req.ID).Msg("failed to append sent result")
	}

	metrics.SendsTotal.WithLabelValues("sent").Inc()
}

// recordFailure marks the request failed and appends a failure result
// carrying the permanent/transient classification. Send failures are
// terminal for the attempt; retry means resubmitting.
func (s *Sender) recordFailure(ctx context.Context, requestID int64, sendErr error) {
	permanent := provider.IsPermanent(sendErr)

	s.log.Error().Err(sendErr).
		Int64("request_id", requestID).
		Str("provider", s.provider.GetName()).
		Bool("permanent", permanent).
		Msg("provider send failed")

	if err := s.queries.MarkEmailRequestFailed(ctx, storage.MarkEmailRequestFailedParams{
		ID:    requestID,
		Error: sendErr.Error(),
	}); err != nil {
		s.log.Error().Err(err).Int64("request_id", requestID).Msg("failed to mark request failed")
	}

	raw, _ := json.Marshal(map[string]any{
		"provider":  s.provider.GetName(),
		"error":     sendErr.Error(),
		"permanent": permanent,
	})
	if _, err := s.queries.AppendEmailResult(ctx, storage.AppendEmailResultParams{
		RequestID: requestID,
		Status:    storage.ResultStatusFailed,
		Raw:       pgtype.Text{String: string(raw), Valid: true},
	}); err != nil {
		s.log.Error().Err(err).Int64("request_id", requestID).Msg("failed to append failure result")
	}

	metrics.SendsTotal.WithLabelValues("failed").Inc()
}

// withTrackingPixel appends the open-tracking image tag to the content.
func (s *Sender) withTrackingPixel(content string, requestID int64) string {
	if s.publicURL == "" {
		return content
	}
	return content + fmt.Sprintf(
		`<img src="%s/api/v1/events/open?request_id=%d" width="1" height="1" alt="">`,
		s.publicURL, requestID,
	)
}
