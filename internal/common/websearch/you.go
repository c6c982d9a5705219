package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	apperrors "statement-analyzer/internal/common/errors"
	commonhttp "statement-analyzer/internal/common/http"
)

const DefaultYouBaseURL = "https://api.ydc-index.io/search"

type YouOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// YouClient queries the You.com search API.
type YouClient struct {
	baseURL string
	client  *commonhttp.Client
}

func NewYouClient(opts YouOptions) *YouClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultYouBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &YouClient{
		baseURL: baseURL,
		client:  commonhttp.NewClient(timeout).WithHeader("X-API-Key", opts.APIKey),
	}
}

func (y *YouClient) Name() string {
	return "you"
}

type youResponse struct {
	Hits []json.RawMessage `json:"hits"`
}

type youHit struct {
	URL         json.RawMessage `json:"url"`
	Title       json.RawMessage `json:"title"`
	Description json.RawMessage `json:"description"`
	Snippets    json.RawMessage `json:"snippets"`
}

// Search issues GET {baseURL}?query=q. A body without a hits array yields
// zero hits. Hits are decoded one at a time; a hit that is not an object, or
// whose url is not a string, comes back with an empty URL.
func (y *YouClient) Search(ctx context.Context, query string) ([]Hit, error) {
	resp, err := y.client.Get(ctx, y.baseURL, url.Values{"query": {query}})
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, string(resp.Body))
	}

	var decoded youResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, apperrors.NewUpstreamMalformedError(ServiceName, fmt.Errorf("decode search response: %w", err))
	}

	hits := make([]Hit, 0, len(decoded.Hits))
	for _, raw := range decoded.Hits {
		var h youHit
		if err := json.Unmarshal(raw, &h); err != nil {
			hits = append(hits, Hit{})
			continue
		}
		hit := Hit{URL: stringField(h.URL), Title: stringField(h.Title), Snippet: stringField(h.Description)}
		if hit.Snippet == "" {
			var snippets []string
			if json.Unmarshal(h.Snippets, &snippets) == nil && len(snippets) > 0 {
				hit.Snippet = snippets[0]
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
