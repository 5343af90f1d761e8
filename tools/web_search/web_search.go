package web_search

import (
	"context"
	"fmt"

	"github.com/ramin-sadeghi/briefer/tools/web_search/brave"
	"github.com/ramin-sadeghi/briefer/tools/web_search/models"
	"github.com/ramin-sadeghi/briefer/tools/web_search/serper"
	"github.com/ramin-sadeghi/briefer/tools/web_search/tavily"
)

// WebSearcher is the search collaborator contract. depth is passed through
// opaquely; providers that have no depth notion ignore it.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, depth string) ([]models.Result, error)
}

type Provider string

const (
	TavilyProvider Provider = "tavily"
	BraveProvider  Provider = "brave"
	SerperProvider Provider = "serper"
)

func NewWebSearcher(provider Provider, apiKey string) (WebSearcher, error) {
	switch provider {
	case TavilyProvider:
		return tavily.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", provider)
	}
}
