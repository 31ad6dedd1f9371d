package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
)

const (
	defaultWebSearchResults = 5
	webSearchSystemPrompt   = `You are a web search backend. Search the web for the user's query and answer ONLY with JSON of the form {"results":[{"title":"...","snippet":"...","url":"..."}]}. Use at most %d results, real URLs only, snippets under 300 characters, in the query's language.`
)

var ErrEmptySearchResponse = errors.New("web search returned no content")

type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// WebSearcher answers web queries through an online chat model on OpenRouter.
type WebSearcher struct {
	client *openaisdk.Client
	model  string
}

func NewWebSearcher(cfg Config) (*WebSearcher, error) {
	client := NewClient(cfg)
	if client == nil {
		return nil, errors.New("openrouter api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("web search model is required")
	}
	return &WebSearcher{client: client, model: model}, nil
}

func (w *WebSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("web search query is required")
	}
	if maxResults <= 0 {
		maxResults = defaultWebSearchResults
	}

	resp, err := w.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(w.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(fmt.Sprintf(webSearchSystemPrompt, maxResults)),
			openaisdk.UserMessage(query),
		},
		Temperature: openaisdk.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter: web search: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptySearchResponse
	}
	return parseSearchResults(resp.Choices[0].Message.Content, maxResults)
}

func parseSearchResults(content string, maxResults int) ([]SearchResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptySearchResponse
	}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("openrouter: decode web search results: %w", err)
	}

	out := make([]SearchResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		if strings.TrimSpace(r.URL) == "" && strings.TrimSpace(r.Snippet) == "" {
			continue
		}
		out = append(out, SearchResult{
			Title:   strings.TrimSpace(r.Title),
			Snippet: strings.TrimSpace(r.Snippet),
			URL:     strings.TrimSpace(r.URL),
		})
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}
