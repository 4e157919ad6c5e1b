package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	sesDefaultEndpointFmt = "https://email.%s.amazonaws.com"
	sesSendPath           = "/v2/email/outbound-emails"
	sesAccountPath        = "/v2/email/account"
)

// SES implements the Provider interface for the AWS SES v2 API.
// It uses a configurable HTTP client for testability rather than the
// AWS SDK; request signing is handled by the HTTPClient wrapper.
type SES struct {
	region   string
	endpoint string
	client   HTTPClient
}

// NewSES creates an AWS SES provider from the given configuration.
func NewSES(cfg Config, client HTTPClient) *SES {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(sesDefaultEndpointFmt, cfg.Region)
	}
	return &SES{
		region:   cfg.Region,
		endpoint: endpoint,
		client:   client,
	}
}

func (s *SES) GetName() string { return "ses" }

// Send delivers a message via the AWS SES v2 SendEmail API.
func (s *SES) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	body, err := json.Marshal(s.buildPayload(msg))
	if err != nil {
		return nil, fmt.Errorf("ses: marshal request: %w", err)
	}

	resp, err := s.client.Do(&HTTPRequest{
		Method: "POST",
		URL:    s.endpoint + sesSendPath,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("ses: send request: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var sesResp sesResponse
		messageID := ""
		if err := json.Unmarshal(resp.Body, &sesResp); err == nil {
			messageID = sesResp.MessageID
		}
		return &DeliveryResult{
			ProviderMessageID: messageID,
			Timestamp:         time.Now(),
			Metadata: map[string]string{
				"region":      s.region,
				"status_code": fmt.Sprintf("%d", resp.StatusCode),
			},
		}, nil
	}

	return nil, ClassifyHTTPError("ses", resp.StatusCode, string(resp.Body))
}

// HealthCheck verifies AWS SES connectivity by calling GetAccount.
func (s *SES) HealthCheck(ctx context.Context) error {
	resp, err := s.client.Do(&HTTPRequest{
		Method: "GET",
		URL:    s.endpoint + sesAccountPath,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("ses: health check request: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("ses: health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Quota reports the account send quota from the SES GetAccount API.
func (s *SES) Quota(ctx context.Context) (*Quota, error) {
	resp, err := s.client.Do(&HTTPRequest{
		Method: "GET",
		URL:    s.endpoint + sesAccountPath,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ses: quota request: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, ClassifyHTTPError("ses", resp.StatusCode, string(resp.Body))
	}

	var account sesAccountResponse
	if err := json.Unmarshal(resp.Body, &account); err != nil {
		return nil, fmt.Errorf("ses: decode account response: %w", err)
	}
	return &Quota{
		Max24HourSend:   account.SendQuota.Max24HourSend,
		MaxSendRate:     account.SendQuota.MaxSendRate,
		SentLast24Hours: account.SendQuota.SentLast24Hours,
	}, nil
}

// sesPayload matches the SES v2 SendEmail JSON schema for a simple
// single-recipient HTML message.
type sesPayload struct {
	FromEmailAddress string         `json:"FromEmailAddress"`
	Destination      sesDestination `json:"Destination"`
	Content          sesContent     `json:"Content"`
}

type sesDestination struct {
	ToAddresses []string `json:"ToAddresses"`
}

type sesContent struct {
	Simple sesSimpleMessage `json:"Simple"`
}

type sesSimpleMessage struct {
	Subject sesText `json:"Subject"`
	Body    sesBody `json:"Body"`
}

type sesBody struct {
	HTML sesText `json:"Html"`
}

type sesText struct {
	Data    string `json:"Data"`
	Charset string `json:"Charset"`
}

type sesResponse struct {
	MessageID string `json:"MessageId"`
}

type sesAccountResponse struct {
	SendQuota struct {
		Max24HourSend   float64 `json:"Max24HourSend"`
		MaxSendRate     float64 `json:"MaxSendRate"`
		SentLast24Hours float64 `json:"SentLast24Hours"`
	} `json:"SendQuota"`
}

func (s *SES) buildPayload(msg *Message) sesPayload {
	return sesPayload{
		FromEmailAddress: msg.From,
		Destination:      sesDestination{ToAddresses: []string{msg.Recipient}},
		Content: sesContent{
			Simple: sesSimpleMessage{
				Subject: sesText{Data: msg.Subject, Charset: "UTF-8"},
				Body:    sesBody{HTML: sesText{Data: msg.Content, Charset: "UTF-8"}},
			},
		},
	}
}
