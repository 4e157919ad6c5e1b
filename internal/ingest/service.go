package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailcast/internal/dispatch"
	"github.com/sungwon/mailcast/internal/metrics"
	"github.com/sungwon/mailcast/internal/storage"
)

// ErrOverloaded reports that the dispatch channel had no capacity for
// an immediate request. The request was not persisted; the caller may
// retry.
var ErrOverloaded = errors.New("ingest: dispatch channel full, retry later")

// TxStore runs a unit of work in one database transaction.
// *storage.DB implements it.
type TxStore interface {
	InTx(ctx context.Context, fn func(q storage.Querier) error) error
}

// Message is one entry of a submitted batch, fanned out to one request
// per recipient.
type Message struct {
	TopicID    string
	Recipients []string
	Subject    string
	Content    string
}

// Batch is a submission of messages sharing one optional scheduled
// time. A zero ScheduledAt means immediate dispatch.
type Batch struct {
	Messages    []Message
	ScheduledAt time.Time
}

// Receipt reports what a submission created.
type Receipt struct {
	Created    int     `json:"created"`
	Scheduled  bool    `json:"scheduled"`
	RequestIDs []int64 `json:"request_ids"`
}

// Service persists batch submissions and feeds the immediate path of
// the dispatch channel. Scheduled requests are left pending for the
// scheduler to promote.
type Service struct {
	store TxStore
	ch    *dispatch.Channel
	log   zerolog.Logger
}

// NewService creates an ingest Service.
func NewService(store TxStore, ch *dispatch.Channel, log zerolog.Logger) *Service {
	return &Service{store: store, ch: ch, log: log}
}

// Submit persists one pending request per (message, recipient) pair.
// Immediate requests are claimed at insert and enqueued after the
// insert commits, so the worker never dequeues a task whose row is not
// yet visible. A full channel fails the submission before anything is
// persisted. Each recipient commits independently; on overload the
// receipt reports what was created before the channel filled,
// alongside ErrOverloaded.
func (s *Service) Submit(ctx context.Context, batch Batch) (*Receipt, error) {
	now := time.Now().UTC()
	scheduledAt := batch.ScheduledAt
	immediate := scheduledAt.IsZero() || !scheduledAt.After(now)
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	receipt := &Receipt{Scheduled: !immediate}
	for _, msg := range batch.Messages {
		for _, recipient := range msg.Recipients {
			id, err := s.submitOne(ctx, msg, recipient, scheduledAt, immediate)
			if err != nil {
				return receipt, err
			}
			receipt.Created++
			receipt.RequestIDs = append(receipt.RequestIDs, id)
		}
	}

	s.log.Info().
		Int("created", receipt.Created).
		Bool("scheduled", receipt.Scheduled).
		Msg("batch submitted")
	return receipt, nil
}

func (s *Service) submitOne(ctx context.Context, msg Message, recipient string, scheduledAt time.Time, immediate bool) (int64, error) {
	var task dispatch.Task
	err := s.store.InTx(ctx, func(q storage.Querier) error {
		if immediate && s.ch.Len() >= s.ch.Cap() {
			// Refuse before persisting: overload rolls back instead of
			// leaving a claimed row behind.
			return ErrOverloaded
		}

		params := storage.CreateEmailRequestParams{
			TopicID:     msg.TopicID,
			Recipient:   recipient,
			Subject:     msg.Subject,
			Content:     msg.Content,
			ScheduledAt: scheduledAt,
		}
		if immediate {
			// Claim at insert: the task is enqueued right after commit.
			params.DispatchedAt = pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
		}

		req, err := q.CreateEmailRequest(ctx, params)
		if err != nil {
			return fmt.Errorf("persist request for %s: %w", recipient, err)
		}
		task = dispatch.Task{
			RequestID: req.ID,
			Recipient: req.Recipient,
			Subject:   req.Subject,
			Content:   req.Content,
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !immediate {
		return task.RequestID, nil
	}

	// Enqueue only after the commit. The worker re-reads the row on
	// dequeue and would discard a task it cannot find yet.
	if err := s.ch.TryEnqueue(task); err != nil {
		// The channel filled during the commit round trip. The row is
		// persisted and claimed; once the claim expires the scheduler
		// promotes it like any other due request.
		s.log.Warn().
			Int64("request_id", task.RequestID).
			Msg("dispatch channel filled during commit, deferring to scheduler")
		return task.RequestID, nil
	}
	metrics.RequestsEnqueuedTotal.WithLabelValues("api").Inc()
	return task.RequestID, nil
}
