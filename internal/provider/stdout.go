package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stdout implements the Provider interface by writing messages to
// standard output. Intended for development and debugging; messages are
// never actually delivered.
type Stdout struct {
	writer io.Writer
}

// NewStdout creates a Stdout provider that prints messages to os.Stdout.
func NewStdout(_ Config) *Stdout {
	return &Stdout{writer: os.Stdout}
}

func (s *Stdout) GetName() string { return "stdout" }

// Send prints the message details to stdout and returns a successful
// result with a synthetic provider message id.
func (s *Stdout) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	var b strings.Builder
	b.WriteString("--- stdout provider: message ---\n")
	fmt.Fprintf(&b, "ID:      %s\n", msg.ID)
	fmt.Fprintf(&b, "From:    %s\n", msg.From)
	fmt.Fprintf(&b, "To:      %s\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "Body:    (%d bytes)\n", len(msg.Content))
	b.WriteString("--- end ---\n")

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: "stdout-" + uuid.New().String(),
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck always succeeds for the stdout provider.
func (s *Stdout) HealthCheck(_ context.Context) error { return nil }

// Quota reports unlimited capacity for the stdout provider.
func (s *Stdout) Quota(_ context.Context) (*Quota, error) {
	return &Quota{Max24HourSend: -1, MaxSendRate: -1}, nil
}
