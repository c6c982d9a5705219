package analyzestatement

import (
	"context"

	"statement-analyzer/internal/common/websearch"
)

type Input struct {
	Statement string `json:"statement"`
}

type Output struct {
	Statement string   `json:"statement"`
	Analysis  string   `json:"analysis"`
	Sources   []string `json:"sources"`
}

type Hit = websearch.Hit

// Generator returns the model's verdict for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher returns search hits in ranking order.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Hit, error)
}
