package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/mailcast/internal/logger"
	"github.com/sungwon/mailcast/internal/topic"
)

// Topics aggregates and cancels topic-scoped requests.
// *topic.Service implements it.
type Topics interface {
	Aggregate(ctx context.Context, topicID string) (*topic.Counts, error)
	Cancel(ctx context.Context, topicID string) (int64, error)
}

// GetTopicHandler handles GET /api/v1/topics/{topicID}.
func GetTopicHandler(topics Topics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		topicID := chi.URLParam(r, "topicID")
		if topicID == "" {
			respondError(w, http.StatusBadRequest, "topic ID is required")
			return
		}

		counts, err := topics.Aggregate(r.Context(), topicID)
		if err != nil {
			log.Error().Err(err).Str("topic_id", topicID).Msg("failed to aggregate topic")
			respondError(w, http.StatusInternalServerError, "failed to aggregate topic")
			return
		}

		respondJSON(w, http.StatusOK, counts)
	}
}

// CancelTopicHandler handles DELETE /api/v1/topics/{topicID}. It
// cancels the topic's still-pending requests; requests already sent,
// failed, or cancelled are untouched.
func CancelTopicHandler(topics Topics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		topicID := chi.URLParam(r, "topicID")
		if topicID == "" {
			respondError(w, http.StatusBadRequest, "topic ID is required")
			return
		}

		cancelled, err := topics.Cancel(r.Context(), topicID)
		if err != nil {
			log.Error().Err(err).Str("topic_id", topicID).Msg("failed to cancel topic")
			respondError(w, http.StatusInternalServerError, "failed to cancel topic")
			return
		}

		respondJSON(w, http.StatusOK, map[string]int64{"cancelled": cancelled})
	}
}
