package provider

import (
	"context"
	"time"
)

// Provider defines the interface for sending email through an ESP.
type Provider interface {
	// Send delivers a message through the ESP and returns a delivery result.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName returns the provider's identifier (e.g., "ses", "sendgrid").
	GetName() string
	// HealthCheck verifies the provider is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// QuotaReporter is implemented by providers that expose a remaining-
// capacity query. It is surfaced read-only through the reporting API.
type QuotaReporter interface {
	Quota(ctx context.Context) (*Quota, error)
}

// Quota describes a provider's sending capacity.
type Quota struct {
	// Max24HourSend is the total sends permitted per 24-hour window.
	// Negative means unlimited.
	Max24HourSend float64 `json:"max_24_hour_send"`
	// MaxSendRate is the provider-side per-second ceiling.
	MaxSendRate float64 `json:"max_send_rate"`
	// SentLast24Hours is the count already consumed in the window.
	SentLast24Hours float64 `json:"sent_last_24_hours"`
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is one email to one recipient. Content is HTML; the sender
// worker injects the open-tracking pixel before handing it over.
type Message struct {
	ID        string
	From      string
	Recipient string
	Subject   string
	Content   string
}

// DeliveryResult contains the outcome of a delivery attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Timestamp         time.Time
	Metadata          map[string]string
}
