package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL       = "https://maps.googleapis.com/maps/api"
	defaultRadiusMeters  = 5000
	defaultMaxResults    = 10
	maxResponseSizeBytes = 4 << 20
)

var (
	ErrRequestDenied = errors.New("places request denied")
	ErrBadStatus     = errors.New("places returned an error status")
)

type Config struct {
	APIKey       string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	BaseURL      string        `envconfig:"BASE_URL" split_words:"true" default:"https://maps.googleapis.com/maps/api"`
	Language     string        `envconfig:"LANGUAGE" split_words:"true" default:"es"`
	RadiusMeters int           `envconfig:"RADIUS_METERS" split_words:"true" default:"5000"`
	MaxResults   int           `envconfig:"MAX_RESULTS" split_words:"true" default:"10"`
	QPS          float64       `envconfig:"QPS" split_words:"true" default:"5"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Client talks to the Google Places web service: text search, place
// details and the distance matrix.
type Client struct {
	baseURL      string
	apiKey       string
	language     string
	radiusMeters int
	maxResults   int
	httpClient   *http.Client
	limiter      *rate.Limiter
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
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("places api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid places base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	radius := cfg.RadiusMeters
	if radius <= 0 {
		radius = defaultRadiusMeters
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}

	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		language:     strings.TrimSpace(cfg.Language),
		radiusMeters: radius,
		maxResults:   maxResults,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type SearchRequest struct {
	Query            string
	Location         string
	RadiusMeters     int
	PriceLevel       int
	Extras           []string
	MaxTravelMinutes int
	TravelMode       string
}

type Place struct {
	PlaceID       string
	Name          string
	Address       string
	Phone         string
	Website       string
	Rating        float64
	RatingsTotal  int
	PriceLevel    int
	Lat           float64
	Lng           float64
	TravelMinutes int
}

type apiPlace struct {
	PlaceID              string  `json:"place_id"`
	Name                 string  `json:"name"`
	FormattedAddress     string  `json:"formatted_address"`
	FormattedPhoneNumber string  `json:"formatted_phone_number"`
	InternationalPhone   string  `json:"international_phone_number"`
	Website              string  `json:"website"`
	Rating               float64 `json:"rating"`
	UserRatingsTotal     int     `json:"user_ratings_total"`
	PriceLevel           int     `json:"price_level"`
	Geometry             struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

type textSearchResponse struct {
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message"`
	Results      []apiPlace `json:"results"`
}

type detailsResponse struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
	Result       apiPlace `json:"result"`
}

type distanceMatrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// Search runs a text search near the requested location, enriches each hit
// with its details and drops places beyond the travel-time limit.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Place, error) {
	query := strings.TrimSpace(req.Query)
	if extras := strings.TrimSpace(strings.Join(req.Extras, " ")); extras != "" {
		query += " " + extras
	}
	if loc := strings.TrimSpace(req.Location); loc != "" {
		query += " en " + loc
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("places query is required")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("type", "restaurant")
	radius := req.RadiusMeters
	if radius <= 0 {
		radius = c.radiusMeters
	}
	params.Set("radius", strconv.Itoa(radius))
	if req.PriceLevel > 0 {
		params.Set("minprice", strconv.Itoa(req.PriceLevel))
		params.Set("maxprice", strconv.Itoa(req.PriceLevel))
	}

	var search textSearchResponse
	if err := c.get(ctx, "/place/textsearch/json", params, &search); err != nil {
		return nil, err
	}
	if err := checkStatus(search.Status, search.ErrorMessage); err != nil {
		return nil, err
	}

	hits := search.Results
	if len(hits) > c.maxResults {
		hits = hits[:c.maxResults]
	}
	out := make([]Place, 0, len(hits))
	for _, hit := range hits {
		if strings.TrimSpace(hit.PlaceID) == "" {
			continue
		}
		details, err := c.Details(ctx, hit.PlaceID)
		if err != nil {
			return nil, err
		}
		out = append(out, merge(toPlace(hit), details))
	}

	if req.MaxTravelMinutes > 0 && strings.TrimSpace(req.Location) != "" && len(out) > 0 {
		return c.filterByTravel(ctx, req.Location, out, req.MaxTravelMinutes, req.TravelMode)
	}
	return out, nil
}

func (c *Client) Details(ctx context.Context, placeID string) (Place, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "place_id,name,formatted_address,formatted_phone_number,international_phone_number,website,rating,user_ratings_total,price_level,geometry")

	var details detailsResponse
	if err := c.get(ctx, "/place/details/json", params, &details); err != nil {
		return Place{}, err
	}
	if err := checkStatus(details.Status, details.ErrorMessage); err != nil {
		return Place{}, err
	}
	return toPlace(details.Result), nil
}

func (c *Client) filterByTravel(ctx context.Context, origin string, places []Place, maxMinutes int, mode string) ([]Place, error) {
	destinations := make([]string, 0, len(places))
	for _, p := range places {
		destinations = append(destinations, strconv.FormatFloat(p.Lat, 'f', -1, 64)+","+strconv.FormatFloat(p.Lng, 'f', -1, 64))
	}
	if strings.TrimSpace(mode) == "" {
		mode = "walking"
	}

	params := url.Values{}
	params.Set("origins", origin)
	params.Set("destinations", strings.Join(destinations, "|"))
	params.Set("mode", mode)

	var matrix distanceMatrixResponse
	if err := c.get(ctx, "/distancematrix/json", params, &matrix); err != nil {
		return nil, err
	}
	if err := checkStatus(matrix.Status, matrix.ErrorMessage); err != nil {
		return nil, err
	}
	if len(matrix.Rows) == 0 {
		return nil, nil
	}

	elements := matrix.Rows[0].Elements
	out := make([]Place, 0, len(places))
	for i, p := range places {
		if i >= len(elements) || elements[i].Status != "OK" {
			continue
		}
		minutes := (elements[i].Duration.Value + 59) / 60
		if minutes > maxMinutes {
			continue
		}
		p.TravelMinutes = minutes
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("places rate limit: %w", err)
	}
	params.Set("key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build places request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute places request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read places response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: http status=%d body=%s", ErrBadStatus, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode places response: %w", err)
	}
	return nil
}

func checkStatus(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS", "":
		return nil
	case "REQUEST_DENIED":
		return fmt.Errorf("%w: %s", ErrRequestDenied, message)
	default:
		return fmt.Errorf("%w: status=%s %s", ErrBadStatus, status, message)
	}
}

func toPlace(p apiPlace) Place {
	phone := strings.TrimSpace(p.InternationalPhone)
	if phone == "" {
		phone = strings.TrimSpace(p.FormattedPhoneNumber)
	}
	return Place{
		PlaceID:      p.PlaceID,
		Name:         strings.TrimSpace(p.Name),
		Address:      strings.TrimSpace(p.FormattedAddress),
		Phone:        phone,
		Website:      strings.TrimSpace(p.Website),
		Rating:       p.Rating,
		RatingsTotal: p.UserRatingsTotal,
		PriceLevel:   p.PriceLevel,
		Lat:          p.Geometry.Location.Lat,
		Lng:          p.Geometry.Location.Lng,
	}
}

// merge fills the search hit's blanks from its details.
func merge(hit, details Place) Place {
	if hit.Address == "" {
		hit.Address = details.Address
	}
	if hit.Phone == "" {
		hit.Phone = details.Phone
	}
	if hit.Website == "" {
		hit.Website = details.Website
	}
	if hit.Rating == 0 {
		hit.Rating = details.Rating
	}
	if hit.RatingsTotal == 0 {
		hit.RatingsTotal = details.RatingsTotal
	}
	if hit.Lat == 0 && hit.Lng == 0 {
		hit.Lat, hit.Lng = details.Lat, details.Lng
	}
	return hit
}
