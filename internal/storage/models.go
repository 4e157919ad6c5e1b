package storage

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// RequestStatus is the lifecycle state of an EmailRequest.
// Transitions: pending -> sent | failed | cancelled. Terminal states
// are never left.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusSent      RequestStatus = "sent"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Result status vocabulary for the email_results log. "sent" and
// "failed" record the worker's attempt outcome; "delivery", "bounce"
// and "complaint" record asynchronous provider notifications; "open"
// records the first tracking-pixel fetch.
const (
	ResultStatusSent      = "sent"
	ResultStatusFailed    = "failed"
	ResultStatusDelivery  = "delivery"
	ResultStatusBounce    = "bounce"
	ResultStatusComplaint = "complaint"
	ResultStatusOpen      = "open"
)

// EmailRequest is one persisted send request: a single (topic,
// recipient) pair from a submitted batch.
type EmailRequest struct {
	ID                int64
	TopicID           string
	ProviderMessageID pgtype.Text
	Recipient         string
	Subject           string
	Content           string
	ScheduledAt       time.Time
	Status            RequestStatus
	Error             pgtype.Text
	DispatchedAt      pgtype.Timestamptz
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         pgtype.Timestamptz
}

// EmailResult is one append-only entry in a request's outcome log.
type EmailResult struct {
	ID              int64
	RequestID       int64
	Status          string
	ProviderEventID pgtype.Text
	Raw             pgtype.Text
	CreatedAt       time.Time
}

// StatusCount is one row of a GROUP BY status aggregate.
type StatusCount struct {
	Status string
	Count  int64
}
