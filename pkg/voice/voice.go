package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 20

var ErrUnreachable = errors.New("phone number unreachable")

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5m"`
}

// Client drives the voice agent service. Calls are synchronous: the request
// returns once the call has ended.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("voice service url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid voice service url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type CallRequest struct {
	To          string `json:"to"`
	Mission     string `json:"mission"`
	Context     string `json:"context,omitempty"`
	CallerName  string `json:"caller_name,omitempty"`
	CallerPhone string `json:"caller_phone,omitempty"`
	Language    string `json:"language,omitempty"`
}

type CallStatus string

const (
	CallCompleted   CallStatus = "completed"
	CallFailed      CallStatus = "failed"
	CallNoAnswer    CallStatus = "no_answer"
	CallBusy        CallStatus = "busy"
	CallUnreachable CallStatus = "unreachable"
)

type CallResult struct {
	CallID            string     `json:"call_id"`
	Status            CallStatus `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	Transcript        string     `json:"transcript,omitempty"`
	ScheduleDeviation string     `json:"schedule_deviation,omitempty"`
	ConfirmedTime     string     `json:"confirmed_time,omitempty"`
	DurationSeconds   int        `json:"duration_seconds,omitempty"`
}

// Call places the call and waits for its outcome. Numbers the carrier cannot
// dial yield ErrUnreachable.
func (c *Client) Call(ctx context.Context, req CallRequest) (CallResult, error) {
	if strings.TrimSpace(req.To) == "" {
		return CallResult{}, fmt.Errorf("%w: empty number", ErrUnreachable)
	}
	if strings.TrimSpace(req.Mission) == "" {
		return CallResult{}, errors.New("call mission is required")
	}
	if req.Language == "" {
		req.Language = "es-ES"
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return CallResult{}, fmt.Errorf("marshal call request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/calls", bytes.NewReader(raw))
	if err != nil {
		return CallResult{}, fmt.Errorf("build call request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CallResult{}, fmt.Errorf("execute call request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return CallResult{}, fmt.Errorf("read call response: %w", err)
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return CallResult{}, fmt.Errorf("%w: %s", ErrUnreachable, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return CallResult{}, fmt.Errorf("voice http status=%d body=%s", resp.StatusCode, string(body))
	}

	var out CallResult
	if err := json.Unmarshal(body, &out); err != nil {
		return CallResult{}, fmt.Errorf("decode call response: %w", err)
	}
	if out.Status == CallUnreachable {
		return out, fmt.Errorf("%w: %s", ErrUnreachable, req.To)
	}
	return out, nil
}
