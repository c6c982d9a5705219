package analyzestatement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"statement-analyzer/internal/common/errors"
	"statement-analyzer/internal/common/metrics"
	"statement-analyzer/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TaskType = "analyze-statement"

	promptPrefix = "Is the following statement accurate? Provide a brief explanation. Statement: "
	queryPrefix  = "Provide sources for: "

	serviceGeneration = "generation"
	serviceSearch     = "search"

	resultOK = "OK"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type HandlerOptions struct {
	Config        *Config
	Generator     Generator
	Searcher      Searcher
	Logger        Logger
	Observability *observability.Observability
}

// Handler runs the fact-check flow: ask the generator for a verdict and,
// when the verdict flags the statement, collect source URLs from the searcher.
type Handler struct {
	config       *Config
	generator    Generator
	searcher     Searcher
	logger       Logger
	obs          *observability.Observability
	errorHandler *errors.ErrorHandler
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if opts.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	obs := opts.Observability
	if obs == nil {
		obs = &observability.Observability{}
	}

	log := opts.Logger.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       cfg,
		generator:    opts.Generator,
		searcher:     opts.Searcher,
		logger:       log,
		obs:          obs,
		errorHandler: errors.NewErrorHandler(log),
	}, nil
}

// IsFlagged reports whether a verdict signals inaccuracy. Plain substring
// matching: "not accurate" or "false" anywhere, case-insensitively.
func IsFlagged(verdict string) bool {
	lower := strings.ToLower(verdict)
	return strings.Contains(lower, "not accurate") || strings.Contains(lower, "false")
}

func BuildPrompt(statement string) string {
	return promptPrefix + statement
}

func BuildQuery(statement string) string {
	return queryPrefix + statement
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.process(ctx, job)
	if err != nil {
		stdErr := errors.Normalize(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
		h.obs.RecordJobProcessed(ctx, TaskType, "failed")
		h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")
		h.errorHandler.HandleJobError(context.Background(), client, job, stdErr)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")
}

func (h *Handler) process(ctx context.Context, job entities.Job) (*Output, error) {
	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("parse input: %v", err))
	}
	return h.Execute(ctx, &input)
}

// Execute analyzes one statement. Any generation failure aborts; a malformed
// search response degrades to an empty source list while every other search
// failure aborts.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()

	output, flagged, err := h.execute(ctx, input)

	code := resultOK
	if err != nil {
		code = string(errors.Normalize(err).Code)
	}
	metrics.AnalysesTotal.WithLabelValues(code).Inc()
	if flagged {
		metrics.StatementsFlagged.Inc()
	}
	h.obs.RecordAnalysis(ctx, time.Since(start), code, flagged)

	return output, err
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, bool, error) {
	if input == nil || strings.TrimSpace(input.Statement) == "" {
		return nil, false, errors.NewValidationError("statement is required")
	}

	verdict, err := h.generate(ctx, BuildPrompt(input.Statement))
	if err != nil {
		return nil, false, err
	}

	output := &Output{
		Statement: input.Statement,
		Analysis:  verdict,
		Sources:   []string{},
	}

	if !IsFlagged(verdict) {
		h.logger.Info("statement not flagged", map[string]interface{}{
			"statementLength": len(input.Statement),
		})
		return output, false, nil
	}

	sources, err := h.collectSources(ctx, BuildQuery(input.Statement))
	if err != nil {
		return nil, true, err
	}
	output.Sources = sources

	h.logger.Info("statement flagged", map[string]interface{}{
		"statementLength": len(input.Statement),
		"sourceCount":     len(sources),
	})
	return output, true, nil
}

func (h *Handler) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.GenerationTimeout)
	defer cancel()

	ctx, span := h.obs.StartSpan(ctx, "generation.generate", attribute.String("upstream.service", serviceGeneration))
	defer span.End()

	start := time.Now()
	verdict, err := h.generator.Generate(ctx, prompt)
	if err != nil {
		err = classify(ctx, serviceGeneration, err)
	}
	h.recordUpstream(span, serviceGeneration, start, err)
	return verdict, err
}

func (h *Handler) collectSources(ctx context.Context, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.SearchTimeout)
	defer cancel()

	ctx, span := h.obs.StartSpan(ctx, "search.query", attribute.String("upstream.service", serviceSearch))
	defer span.End()

	start := time.Now()
	hits, err := h.searcher.Search(ctx, query)
	if err != nil {
		err = classify(ctx, serviceSearch, err)
	}
	h.recordUpstream(span, serviceSearch, start, err)

	if err != nil {
		stdErr := errors.Normalize(err)
		if stdErr.Code == errors.ErrCodeUpstreamMalformed {
			h.logger.Warn("malformed search response, returning no sources", map[string]interface{}{
				"errorCode": string(stdErr.Code),
				"details":   stdErr.Details,
			})
			return []string{}, nil
		}
		return nil, err
	}

	// Hits with a missing, empty or non-string url carry URL "" and are skipped.
	sources := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.URL == "" {
			continue
		}
		sources = append(sources, hit.URL)
	}
	return sources, nil
}

func (h *Handler) recordUpstream(span trace.Span, service string, start time.Time, err error) {
	metrics.UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.UpstreamCalls.WithLabelValues(service, metrics.OutcomeSuccess, "").Inc()
		return
	}

	stdErr := errors.Normalize(err)
	metrics.UpstreamCalls.WithLabelValues(service, metrics.OutcomeError, string(stdErr.Code)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, string(stdErr.Code))

	h.logger.Error("upstream call failed", map[string]interface{}{
		"service":   service,
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
	})
}

// classify keeps taxonomy errors from the clients and maps anything else by
// the state of ctx.
func classify(ctx context.Context, service string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewUpstreamTimeoutError(service, err)
	}
	return errors.NewUpstreamUnavailableError(service, err)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}
