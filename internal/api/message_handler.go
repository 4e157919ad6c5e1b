package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sungwon/mailcast/internal/ingest"
	"github.com/sungwon/mailcast/internal/logger"
)

// Submitter persists a batch of messages and enqueues the immediate
// ones. *ingest.Service implements it.
type Submitter interface {
	Submit(ctx context.Context, batch ingest.Batch) (*ingest.Receipt, error)
}

type submitMessage struct {
	TopicID string   `json:"topic_id"`
	Emails  []string `json:"emails"`
	Subject string   `json:"subject"`
	Content string   `json:"content"`
}

type submitRequest struct {
	Messages    []submitMessage `json:"messages"`
	ScheduledAt string          `json:"scheduled_at,omitempty"`
}

// scheduled_at accepts RFC 3339 or a plain UTC timestamp.
var scheduledAtLayouts = []string{time.RFC3339, "2006-01-02 15:04:05"}

func parseScheduledAt(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range scheduledAtLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// SubmitMessagesHandler handles POST /api/v1/messages. Each entry fans
// out to one email request per recipient; with scheduled_at in the
// future the requests wait for the scheduler, otherwise they are
// enqueued for immediate dispatch.
func SubmitMessagesHandler(submitter Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var validationErrors []string
		if len(req.Messages) == 0 {
			validationErrors = append(validationErrors, "messages is required")
		}
		for _, msg := range req.Messages {
			if len(msg.Emails) == 0 {
				validationErrors = append(validationErrors, "emails is required for every message")
				break
			}
		}
		for _, msg := range req.Messages {
			if msg.Subject == "" || msg.Content == "" {
				validationErrors = append(validationErrors, "subject and content are required for every message")
				break
			}
		}

		var scheduledAt time.Time
		if req.ScheduledAt != "" {
			var err error
			scheduledAt, err = parseScheduledAt(req.ScheduledAt)
			if err != nil {
				validationErrors = append(validationErrors, "scheduled_at must be RFC 3339 or YYYY-MM-DD HH:MM:SS")
			}
		}

		if len(validationErrors) > 0 {
			respondValidationErrors(w, validationErrors)
			return
		}

		batch := ingest.Batch{ScheduledAt: scheduledAt}
		for _, msg := range req.Messages {
			batch.Messages = append(batch.Messages, ingest.Message{
				TopicID:    msg.TopicID,
				Recipients: msg.Emails,
				Subject:    msg.Subject,
				Content:    msg.Content,
			})
		}

		receipt, err := submitter.Submit(r.Context(), batch)
		if err != nil {
			if errors.Is(err, ingest.ErrOverloaded) {
				created := 0
				if receipt != nil {
					created = receipt.Created
				}
				log.Warn().
					Int("created", created).
					Msg("batch rejected, dispatch channel full")
				respondError(w, http.StatusServiceUnavailable, "dispatch queue full, retry later")
				return
			}
			log.Error().Err(err).Msg("failed to submit batch")
			respondError(w, http.StatusInternalServerError, "failed to submit messages")
			return
		}

		respondJSON(w, http.StatusCreated, receipt)
	}
}
