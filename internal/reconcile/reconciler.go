package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailcast/internal/metrics"
	"github.com/sungwon/mailcast/internal/storage"
)

// Event is a normalized provider delivery-status notification.
type Event struct {
	// ProviderMessageID correlates the event to the owning request.
	ProviderMessageID string
	// Kind is one of "delivery", "bounce", "complaint".
	Kind string
	// EventID is the provider's stable event identifier, used for
	// replay dedup. May be empty when the provider supplies none.
	EventID string
	// Raw is the original notification payload, kept for audit.
	Raw string
}

// ErrUnknownKind is returned for event kinds outside the fixed
// vocabulary.
var ErrUnknownKind = errors.New("reconcile: unknown event kind")

// Reconciler ingests asynchronous provider notifications and
// open-tracking pings, appending them to the result log idempotently.
// It never mutates request status: the send attempt outcome and the
// downstream delivery outcome are separate axes.
type Reconciler struct {
	queries storage.Querier
	log     zerolog.Logger
}

// New creates a Reconciler.
func New(queries storage.Querier, log zerolog.Logger) *Reconciler {
	return &Reconciler{queries: queries, log: log}
}

// ProcessEvent correlates a notification to its request and appends a
// result row. Unmatched events are logged and dropped without error:
// providers may notify about message ids the store never saw. Replays
// of an event with the same EventID are no-ops.
func (r *Reconciler) ProcessEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case storage.ResultStatusDelivery, storage.ResultStatusBounce, storage.ResultStatusComplaint:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}

	requestID, err := r.queries.GetRequestIDByProviderMessageID(ctx, ev.ProviderMessageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.log.Warn().
				Str("provider_message_id", ev.ProviderMessageID).
				Str("kind", ev.Kind).
				Msg("notification for unknown message id, dropping")
			metrics.WebhookEventsTotal.WithLabelValues(ev.Kind, "unmatched").Inc()
			return nil
		}
		return fmt.Errorf("lookup request for message id %q: %w", ev.ProviderMessageID, err)
	}

	eventID := pgtype.Text{String: ev.EventID, Valid: ev.EventID != ""}
	inserted, err := r.queries.AppendEmailResult(ctx, storage.AppendEmailResultParams{
		RequestID:       requestID,
		Status:          ev.Kind,
		ProviderEventID: eventID,
		Raw:             pgtype.Text{String: ev.Raw, Valid: ev.Raw != ""},
	})
	if err != nil {
		return fmt.Errorf("append %s result for request %d: %w", ev.Kind, requestID, err)
	}

	if !inserted {
		r.log.Debug().
			Int64("request_id", requestID).
			Str("kind", ev.Kind).
			Str("event_id", ev.EventID).
			Msg("duplicate notification, already recorded")
		metrics.WebhookEventsTotal.WithLabelValues(ev.Kind, "duplicate").Inc()
		return nil
	}

	r.log.Info().
		Int64("request_id", requestID).
		Str("kind", ev.Kind).
		Msg("notification recorded")
	metrics.WebhookEventsTotal.WithLabelValues(ev.Kind, "applied").Inc()
	return nil
}

// RecordOpen appends an open result for the request. Only the first
// open per request is persisted; it reports whether this ping was the
// first. Duplicate pings are not errors, since tracking pixels are
// refetched by clients and proxies.
func (r *Reconciler) RecordOpen(ctx context.Context, requestID int64) (bool, error) {
	inserted, err := r.queries.AppendEmailResult(ctx, storage.AppendEmailResultParams{
		RequestID: requestID,
		Status:    storage.ResultStatusOpen,
	})
	if err != nil {
		return false, fmt.Errorf("append open result for request %d: %w", requestID, err)
	}

	if inserted {
		metrics.OpenPingsTotal.WithLabelValues("recorded").Inc()
	} else {
		metrics.OpenPingsTotal.WithLabelValues("duplicate").Inc()
	}
	return inserted, nil
}
