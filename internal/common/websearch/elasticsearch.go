package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"statement-analyzer/internal/common/config"
	apperrors "statement-analyzer/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

type ElasticsearchOptions struct {
	Index  string
	Fields []string
	Size   int
}

// ElasticsearchClient searches a self-hosted reference index. Documents are
// expected to carry url, title and content fields.
type ElasticsearchClient struct {
	client *elasticsearch.Client
	index  string
	fields []string
	size   int
}

func NewElasticsearchClient(client *elasticsearch.Client, opts ElasticsearchOptions) *ElasticsearchClient {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = config.DefaultSearchFields
	}
	size := opts.Size
	if size <= 0 {
		size = 10
	}
	return &ElasticsearchClient{
		client: client,
		index:  opts.Index,
		fields: fields,
		size:   size,
	}
}

func (e *ElasticsearchClient) Name() string {
	return "elasticsearch"
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				URL     json.RawMessage `json:"url"`
				Title   json.RawMessage `json:"title"`
				Content json.RawMessage `json:"content"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticsearchClient) Search(ctx context.Context, query string) ([]Hit, error) {
	body, err := json.Marshal(buildMultiMatch(query, e.fields))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	size := e.size
	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if res.IsError() {
		return nil, statusError(res.StatusCode, string(raw))
	}

	var decoded esSearchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apperrors.NewUpstreamMalformedError(ServiceName, fmt.Errorf("decode elasticsearch response: %w", err))
	}

	hits := make([]Hit, 0, len(decoded.Hits.Hits))
	for _, h := range decoded.Hits.Hits {
		hits = append(hits, Hit{
			URL:     stringField(h.Source.URL),
			Title:   stringField(h.Source.Title),
			Snippet: stringField(h.Source.Content),
		})
	}
	return hits, nil
}

func buildMultiMatch(query string, fields []string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": fields,
				"type":   "best_fields",
			},
		},
		"_source": []string{"url", "title", "content"},
	}
}
