// Package africastalking is a notify.Dispatcher backed by the Africa's
// Talking bulk SMS API, the provider the USSD gateway itself runs on. The
// request is a form-encoded POST authenticated with an API key header; the
// response envelope reports per-recipient status and cost.
package africastalking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/kasalabs/ussd-server-go/notify"
)

// SandboxEndpoint is the messaging endpoint of the Africa's Talking sandbox
// environment. Production uses https://api.africastalking.com/version1/messaging.
const SandboxEndpoint = "https://api.sandbox.africastalking.com/version1/messaging"

// Config for the SMS client. Defaults can be loaded via envdecode.
type Config struct {
	// Username of the Africa's Talking account. ENV: AFRICAS_TALKING_USERNAME
	Username string `env:"AFRICAS_TALKING_USERNAME,default=sandbox"`
	// APIKey authenticates requests. ENV: AFRICAS_TALKING_API_KEY
	APIKey string `env:"AFRICAS_TALKING_API_KEY"`
	// SenderID is the alphanumeric sender shown on handsets. Leave empty in
	// the sandbox, which rejects custom sender IDs. ENV: AFRICAS_TALKING_SENDER_ID
	SenderID string `env:"AFRICAS_TALKING_SENDER_ID"`
	// Endpoint overrides the messaging URL. ENV: AFRICAS_TALKING_ENDPOINT
	Endpoint string `env:"AFRICAS_TALKING_ENDPOINT"`
}

// ErrMissingAPIKey indicates the client was constructed without credentials.
var ErrMissingAPIKey = errors.New("africastalking: api key is required")

// Client implements notify.Dispatcher against the Africa's Talking API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Username == "" {
		cfg.Username = "sandbox"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = SandboxEndpoint
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

// NewFromEnv builds a Client using envdecode to populate Config.
func NewFromEnv() (*Client, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

var _ notify.Dispatcher = (*Client)(nil)

// envelope mirrors the provider's response shape.
type envelope struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			Number     string `json:"number"`
			Status     string `json:"status"`
			StatusCode int    `json:"statusCode"`
			MessageID  string `json:"messageId"`
			Cost       string `json:"cost"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (c *Client) Send(ctx context.Context, recipients []string, message string) (*notify.Report, error) {
	if len(recipients) == 0 {
		return &notify.Report{}, nil
	}

	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("to", strings.Join(recipients, ","))
	form.Set("message", message)
	if c.cfg.SenderID != "" {
		form.Set("from", c.cfg.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("send sms: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	report := &notify.Report{}
	for _, r := range env.SMSMessageData.Recipients {
		report.Results = append(report.Results, notify.DeliveryResult{
			Recipient: r.Number,
			Status:    r.Status,
			MessageID: r.MessageID,
			Cost:      r.Cost,
		})
	}
	return report, nil
}
