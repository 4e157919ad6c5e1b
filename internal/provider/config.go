package provider

import "fmt"

// Config selects and parameterizes the ESP provider.
type Config struct {
	Type     string // ses (default), sendgrid, stdout
	Region   string
	Endpoint string
	APIKey   string
}

// New creates the Provider named by cfg.Type.
func New(cfg Config, client HTTPClient) (Provider, error) {
	switch cfg.Type {
	case "", "ses":
		return NewSES(cfg, client), nil
	case "sendgrid":
		return NewSendGrid(cfg, client), nil
	case "stdout":
		return NewStdout(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
