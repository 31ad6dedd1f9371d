package reservehub

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
	"sync"
	"time"
)

const (
	maxResponseSizeBytes = 2 << 20
	venueCacheTTL        = 5 * time.Minute
)

var (
	ErrVenueNotFound = errors.New("reservehub venue not found")
	ErrRejected      = errors.New("reservehub rejected the request")
	ErrUnauthorized  = errors.New("reservehub api key rejected")
)

type Config struct {
	URL           string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey        string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	CustomerName  string        `envconfig:"CUSTOMER_NAME" split_words:"true"`
	CustomerPhone string        `envconfig:"CUSTOMER_PHONE" split_words:"true"`
	Timeout       time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Client talks to the ReserveHub venue, availability and reservation API.
type Client struct {
	baseURL       string
	apiKey        string
	customerName  string
	customerPhone string
	httpClient    *http.Client

	mu       sync.Mutex
	venues   []Venue
	cachedAt time.Time
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
		return nil, errors.New("reservehub url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid reservehub url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		customerName:  strings.TrimSpace(cfg.CustomerName),
		customerPhone: strings.TrimSpace(cfg.CustomerPhone),
		httpClient:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type Venue struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Timezone string `json:"timezone"`
}

type AvailabilityQuery struct {
	VenueID   string `json:"venue_id"`
	Date      string `json:"reservation_date"`
	PartySize int    `json:"party_size"`
	ShiftID   string `json:"shift_id,omitempty"`
}

type Slot struct {
	SlotTime  string `json:"slot_time"`
	Available bool   `json:"available"`
	ShiftID   string `json:"shift_id,omitempty"`
}

// Clock returns the slot time as HH:MM.
func (s Slot) Clock() string {
	if len(s.SlotTime) >= 5 {
		return s.SlotTime[:5]
	}
	return s.SlotTime
}

type ReservationRequest struct {
	VenueID   string `json:"venue_id"`
	Date      string `json:"reservation_date"`
	Time      string `json:"reservation_time"`
	PartySize int    `json:"party_size"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes,omitempty"`
}

type Reservation struct {
	ID        string `json:"id"`
	VenueID   string `json:"venue_id"`
	Date      string `json:"reservation_date"`
	Time      string `json:"reservation_time"`
	PartySize int    `json:"party_size"`
	Status    string `json:"status"`
}

func (c *Client) ListVenues(ctx context.Context) ([]Venue, error) {
	c.mu.Lock()
	if c.venues != nil && time.Since(c.cachedAt) < venueCacheTTL {
		venues := append([]Venue(nil), c.venues...)
		c.mu.Unlock()
		return venues, nil
	}
	c.mu.Unlock()

	var venues []Venue
	if err := c.do(ctx, http.MethodGet, "/api/venues", nil, &venues); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.venues = append([]Venue(nil), venues...)
	c.cachedAt = time.Now()
	c.mu.Unlock()
	return venues, nil
}

// FindVenue matches a venue by name, ignoring case and surrounding spaces.
func (c *Client) FindVenue(ctx context.Context, name string) (Venue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Venue{}, ErrVenueNotFound
	}
	venues, err := c.ListVenues(ctx)
	if err != nil {
		return Venue{}, err
	}
	for _, v := range venues {
		if strings.EqualFold(strings.TrimSpace(v.Name), name) {
			return v, nil
		}
	}
	return Venue{}, ErrVenueNotFound
}

func (c *Client) Availability(ctx context.Context, q AvailabilityQuery) ([]Slot, error) {
	if strings.TrimSpace(q.VenueID) == "" {
		return nil, ErrVenueNotFound
	}
	var slots []Slot
	if err := c.do(ctx, http.MethodPost, "/api/availability", q, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// CreateReservation books a table. Name and phone default to the configured
// customer identity.
func (c *Client) CreateReservation(ctx context.Context, req ReservationRequest) (Reservation, error) {
	if strings.TrimSpace(req.Name) == "" {
		req.Name = c.customerName
	}
	if strings.TrimSpace(req.Phone) == "" {
		req.Phone = c.customerPhone
	}
	if len(req.Time) == 5 {
		req.Time += ":00"
	}
	var out Reservation
	if err := c.do(ctx, http.MethodPost, "/api/reservations", req, &out); err != nil {
		return Reservation{}, err
	}
	if out.Status != "" && out.Status != "confirmed" {
		return out, fmt.Errorf("%w: reservation status=%s", ErrRejected, out.Status)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal reservehub request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build reservehub request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute reservehub request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read reservehub response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status=%d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrVenueNotFound, detail(raw))
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status=%d %s", ErrRejected, resp.StatusCode, detail(raw))
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("reservehub http status=%d body=%s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode reservehub response: %w", err)
	}
	return nil
}

func detail(raw []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(raw))
}
