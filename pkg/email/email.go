// pkg/email/email.go
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const resendBaseURL = "https://api.resend.com"

// ErrDisabled is reported when no mail provider is configured.
var ErrDisabled = errors.New("email delivery is not configured")

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type resendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Html    string `json:"html"`
}

// ResendSender posts messages to the Resend HTTP API.
type ResendSender struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

type ResendOption func(*ResendSender)

// WithBaseURL points the sender at another API root, e.g. a test server.
func WithBaseURL(url string) ResendOption {
	return func(s *ResendSender) { s.baseURL = url }
}

func WithHTTPClient(c *http.Client) ResendOption {
	return func(s *ResendSender) { s.client = c }
}

func NewResendSender(apiKey, from string, log zerolog.Logger, opts ...ResendOption) (*ResendSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	s := &ResendSender{
		apiKey:  apiKey,
		from:    from,
		baseURL: resendBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "resend").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(resendRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("error marshaling email data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	s.log.Debug().Str("to", msg.To).Int("status", resp.StatusCode).Msg("resend response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("resend API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// DisabledSender fails every send with ErrDisabled so attempts still land
// in the ledger.
type DisabledSender struct{}

func (DisabledSender) Send(context.Context, Message) error { return ErrDisabled }
