// Package websearch holds the clients that look up source URLs for a
// statement.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"statement-analyzer/internal/common/config"
	"statement-analyzer/internal/common/database"
	apperrors "statement-analyzer/internal/common/errors"
)

// ServiceName labels search failures in errors, logs and metrics.
const ServiceName = "search"

// Hit is one search result. Only URL is consumed downstream.
type Hit struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type Client interface {
	Name() string
	Search(ctx context.Context, query string) ([]Hit, error)
}

// New builds the client selected by cfg.Provider. es is only used by the
// elasticsearch provider and must be non-nil for it.
func New(cfg config.WebSearchConfig, es *database.ElasticsearchClient) (Client, error) {
	switch cfg.Provider {
	case "", config.WebSearchProviderYou:
		return NewYouClient(YouOptions{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: config.GetDuration(cfg.Timeout),
		}), nil
	case config.WebSearchProviderElasticsearch:
		if es == nil {
			return nil, fmt.Errorf("websearch: elasticsearch provider needs a client")
		}
		return NewElasticsearchClient(es.Client, ElasticsearchOptions{
			Index:  cfg.Index,
			Fields: cfg.Fields,
			Size:   cfg.Size,
		}), nil
	default:
		return nil, fmt.Errorf("websearch: unsupported provider %q", cfg.Provider)
	}
}

// statusError maps a non-2xx upstream status onto the taxonomy.
func statusError(status int, body string) error {
	err := fmt.Errorf("search API returned %d: %s", status, truncate(body, 256))
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apperrors.NewUpstreamAuthError(ServiceName, err)
	}
	return apperrors.NewUpstreamUnavailableError(ServiceName, err)
}

// transportError maps a failed round trip onto the taxonomy.
func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		return apperrors.NewUpstreamTimeoutError(ServiceName, err)
	}
	return apperrors.NewUpstreamUnavailableError(ServiceName, err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// stringField decodes raw as a JSON string. Anything else, including an
// absent field, yields "".
func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
