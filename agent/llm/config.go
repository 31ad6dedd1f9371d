package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/openrouter"
)

// Purpose selects per-use model overrides.
type Purpose string

const (
	PurposeDecision  Purpose = "decision"
	PurposeWebSearch Purpose = "web_search"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	DecisionModel        string  `envconfig:"DECISION_MODEL" split_words:"true"`
	WebSearchModel       string  `envconfig:"WEB_SEARCH_MODEL" split_words:"true" default:"perplexity/sonar"`
	DecisionTemperature  float32 `envconfig:"DECISION_TEMPERATURE" split_words:"true" default:"-1"`
	WebSearchTemperature float32 `envconfig:"WEB_SEARCH_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(purpose Purpose) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch purpose {
	case PurposeDecision:
		if v := strings.TrimSpace(c.DecisionModel); v != "" {
			modelName = v
		}
		if c.DecisionTemperature >= 0 {
			temp = c.DecisionTemperature
		}
	case PurposeWebSearch:
		if v := strings.TrimSpace(c.WebSearchModel); v != "" {
			modelName = v
		}
		if c.WebSearchTemperature >= 0 {
			temp = c.WebSearchTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
