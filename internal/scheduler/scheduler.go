package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailcast/internal/dispatch"
	"github.com/sungwon/mailcast/internal/metrics"
	"github.com/sungwon/mailcast/internal/storage"
)

// Config holds the scheduler's promotion parameters.
type Config struct {
	// Interval is the wake interval.
	Interval time.Duration
	// BatchSize caps how many due requests one wake claims.
	BatchSize int32
	// RequeueAfter is how long a dispatch claim holds before the row
	// is considered lost and becomes due again.
	RequeueAfter time.Duration
}

// Scheduler promotes due scheduled requests into the dispatch channel.
// Promotion claims rows by stamping dispatched_at, so a request still
// pending at the next wake (e.g. waiting behind a full channel) is not
// enqueued twice; expired claims re-open after RequeueAfter.
type Scheduler struct {
	queries storage.Querier
	ch      *dispatch.Channel
	config  Config
	log     zerolog.Logger
}

// New creates a Scheduler feeding the given dispatch channel.
func New(queries storage.Querier, ch *dispatch.Channel, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.RequeueAfter <= 0 {
		cfg.RequeueAfter = 10 * time.Minute
	}
	return &Scheduler{
		queries: queries,
		ch:      ch,
		config:  cfg,
		log:     log,
	}
}

// Run wakes on the configured interval until the context is cancelled.
// Wakes are processed sequentially on this goroutine; a tick that fires
// while a promotion is still in flight is absorbed by the ticker, so
// wakes never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().
		Dur("interval", s.config.Interval).
		Int32("batch_size", s.config.BatchSize).
		Msg("scheduler started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return
		case <-ticker.C:
			if n, err := s.Promote(ctx); err != nil {
				s.log.Error().Err(err).Msg("promotion wake failed")
			} else if n > 0 {
				s.log.Info().Int("count", n).Msg("promoted due requests")
			}
		}
	}
}

// Promote claims one batch of due pending requests and pushes them onto
// the dispatch channel. It returns the number of requests enqueued.
func (s *Scheduler) Promote(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	claimed, err := s.queries.ClaimDueEmailRequests(ctx, storage.ClaimDueEmailRequestsParams{
		Now:         now,
		RetryBefore: now.Add(-s.config.RequeueAfter),
		Limit:       s.config.BatchSize,
	})
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, req := range claimed {
		// Blocking push: the claim is durable, so waiting out a full
		// channel is safe and preserves backpressure.
		err := s.ch.Enqueue(ctx, dispatch.Task{
			RequestID: req.ID,
			Recipient: req.Recipient,
			Subject:   req.Subject,
			Content:   req.Content,
		})
		if err != nil {
			return enqueued, err
		}
		enqueued++
		metrics.RequestsEnqueuedTotal.WithLabelValues("scheduler").Inc()
		metrics.SchedulerPromotedTotal.Inc()
	}
	return enqueued, nil
}
