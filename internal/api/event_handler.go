package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sungwon/mailcast/internal/logger"
	"github.com/sungwon/mailcast/internal/metrics"
	"github.com/sungwon/mailcast/internal/reconcile"
	"github.com/sungwon/mailcast/internal/storage"
)

// maxWebhookBody caps the accepted webhook payload size.
const maxWebhookBody = 1 << 20

// trackingPixel is a 1x1 transparent PNG, returned for every open ping
// so broken ids still render in the recipient's client.
var trackingPixel = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44,
	0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1F,
	0x15, 0xC4, 0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9C, 0x63, 0x00,
	0x00, 0x00, 0x02, 0x00, 0x01, 0xE2, 0x26, 0x05, 0x9B, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45,
	0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82,
}

// EventProcessor reconciles provider notifications and open pings into
// the result log. *reconcile.Reconciler implements it.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev reconcile.Event) error
	RecordOpen(ctx context.Context, requestID int64) (bool, error)
}

// snsEnvelope is the outer SNS message. SubscriptionConfirmation
// carries SubscribeURL; Notification carries the SES payload as an
// embedded JSON string.
type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// sesNotification is the SES delivery-status payload inside an SNS
// Notification.
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string `json:"messageId"`
	} `json:"mail"`
	Bounce struct {
		FeedbackID string `json:"feedbackId"`
	} `json:"bounce"`
	Complaint struct {
		FeedbackID string `json:"feedbackId"`
	} `json:"complaint"`
}

// eventID picks a stable dedup key for the notification. Bounce and
// complaint payloads carry a feedbackId; delivery falls back to the
// SNS message id, which is stable across redeliveries of the same
// notification.
func (n *sesNotification) eventID(snsMessageID string) string {
	switch strings.ToLower(n.NotificationType) {
	case "bounce":
		return n.Bounce.FeedbackID
	case "complaint":
		return n.Complaint.FeedbackID
	}
	if snsMessageID == "" {
		return ""
	}
	return "delivery:" + snsMessageID
}

// CreateEventHandler handles POST /api/v1/events/results, the SNS
// webhook. SubscriptionConfirmation messages are acknowledged with the
// subscribe URL logged for the operator; Notification messages are
// reconciled into the result log. Non-SES notifications are
// acknowledged and dropped so SNS stops redelivering them.
func CreateEventHandler(processor EventProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		msgType := r.Header.Get("x-amz-sns-message-type")
		if msgType != "Notification" && msgType != "SubscriptionConfirmation" {
			respondError(w, http.StatusBadRequest, "invalid SNS message type")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		var envelope snsEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			log.Error().Err(err).Msg("failed to parse SNS envelope")
			respondError(w, http.StatusBadRequest, "failed to parse SNS message")
			return
		}

		if msgType == "SubscriptionConfirmation" {
			log.Info().Str("subscribe_url", envelope.SubscribeURL).Msg("subscription confirmation required")
			respondJSON(w, http.StatusOK, map[string]string{"status": "subscription confirmation required"})
			return
		}

		var notification sesNotification
		if err := json.Unmarshal([]byte(envelope.Message), &notification); err != nil {
			log.Warn().
				Err(err).
				Str("sns_message_id", envelope.MessageID).
				Msg("non-SES notification received")
			respondJSON(w, http.StatusOK, map[string]string{"status": "non-SES notification ignored"})
			return
		}

		kind := strings.ToLower(notification.NotificationType)
		ev := reconcile.Event{
			ProviderMessageID: notification.Mail.MessageID,
			Kind:              kind,
			EventID:           notification.eventID(envelope.MessageID),
			Raw:               envelope.Message,
		}

		if err := processor.ProcessEvent(r.Context(), ev); err != nil {
			if errors.Is(err, reconcile.ErrUnknownKind) {
				log.Warn().
					Str("notification_type", notification.NotificationType).
					Str("sns_message_id", envelope.MessageID).
					Msg("unknown notification type ignored")
				respondJSON(w, http.StatusOK, map[string]string{"status": "notification type ignored"})
				return
			}
			log.Error().
				Err(err).
				Str("sns_message_id", envelope.MessageID).
				Str("provider_message_id", notification.Mail.MessageID).
				Msg("failed to record event")
			respondError(w, http.StatusInternalServerError, "failed to record event")
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// OpenMessageHandler handles GET /api/v1/events/open, the tracking
// pixel embedded in outgoing content. It always answers with the pixel:
// recording problems must never surface to the recipient's mail client.
func OpenMessageHandler(processor EventProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		if raw := r.URL.Query().Get("request_id"); raw != "" {
			requestID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				metrics.OpenPingsTotal.WithLabelValues("invalid").Inc()
				log.Warn().Str("request_id", raw).Msg("invalid request_id on open ping")
			} else if _, err := processor.RecordOpen(r.Context(), requestID); err != nil {
				log.Error().Err(err).Int64("request_id", requestID).Msg("failed to record open event")
			}
		} else {
			metrics.OpenPingsTotal.WithLabelValues("invalid").Inc()
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write(trackingPixel)
	}
}

// GetSentCountHandler handles GET /api/v1/events/counts/sent. The
// hours query parameter bounds the lookback window, defaulting to 24.
func GetSentCountHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		hours := 24
		if raw := r.URL.Query().Get("hours"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				respondError(w, http.StatusBadRequest, "hours must be a positive integer")
				return
			}
			hours = parsed
		}

		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		count, err := queries.CountSentSince(r.Context(), since)
		if err != nil {
			log.Error().Err(err).Int("hours", hours).Msg("failed to count sent requests")
			respondError(w, http.StatusInternalServerError, "failed to retrieve sent count")
			return
		}

		respondJSON(w, http.StatusOK, map[string]int64{"count": count})
	}
}
