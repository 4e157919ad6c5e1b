package topic

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailcast/internal/storage"
)

// Counts is the aggregate view of one topic, reduced on demand from
// the request table and the append-only result log.
type Counts struct {
	// Requests maps request status to the number of requests in it.
	Requests map[string]int64 `json:"request_counts"`
	// Results maps result status to the number of distinct requests
	// with at least one such result.
	Results map[string]int64 `json:"result_counts"`
	// Total is the number of requests in the topic.
	Total int64 `json:"total"`
	// Opened is the number of requests with a recorded open.
	Opened int64 `json:"opened"`
}

// Service computes per-topic aggregates and performs topic-scoped
// cancellation.
type Service struct {
	queries storage.Querier
	log     zerolog.Logger
}

// NewService creates a topic Service.
func NewService(queries storage.Querier, log zerolog.Logger) *Service {
	return &Service{queries: queries, log: log}
}

// Aggregate scans the topic's requests and reduces its result log into
// counts. Read-only.
func (s *Service) Aggregate(ctx context.Context, topicID string) (*Counts, error) {
	requestCounts, err := s.queries.CountRequestsByTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("count requests for topic %q: %w", topicID, err)
	}
	resultCounts, err := s.queries.CountResultsByTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("count results for topic %q: %w", topicID, err)
	}
	opened, err := s.queries.CountOpenedByTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("count opens for topic %q: %w", topicID, err)
	}

	counts := &Counts{
		Requests: make(map[string]int64, len(requestCounts)),
		Results:  make(map[string]int64, len(resultCounts)),
		Opened:   opened,
	}
	for _, c := range requestCounts {
		counts.Requests[c.Status] = c.Count
		counts.Total += c.Count
	}
	for _, c := range resultCounts {
		counts.Results[c.Status] = c.Count
	}
	return counts, nil
}

// Cancel transitions every still-pending request in the topic to
// cancelled and returns the number affected. Requests already dequeued
// by the sender worker are covered by its pre-send status re-check.
func (s *Service) Cancel(ctx context.Context, topicID string) (int64, error) {
	cancelled, err := s.queries.CancelTopic(ctx, topicID)
	if err != nil {
		return 0, fmt.Errorf("cancel topic %q: %w", topicID, err)
	}

	s.log.Info().
		Str("topic_id", topicID).
		Int64("cancelled", cancelled).
		Msg("topic cancelled")
	return cancelled, nil
}
