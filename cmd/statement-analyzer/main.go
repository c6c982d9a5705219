// cmd/statement-analyzer/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"statement-analyzer/internal/api"
	"statement-analyzer/internal/common/camunda"
	"statement-analyzer/internal/common/config"
	"statement-analyzer/internal/common/database"
	"statement-analyzer/internal/common/genai"
	"statement-analyzer/internal/common/logger"
	"statement-analyzer/internal/common/observability"
	"statement-analyzer/internal/common/websearch"

	as "statement-analyzer/internal/workers/fact-check/analyze-statement"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting statement analyzer...",
		zap.String("genaiProvider", cfg.APIs.GenAI.Provider),
		zap.String("searchProvider", cfg.APIs.WebSearch.Provider),
		zap.String("traceExporter", cfg.Tracing.Exporter),
	)

	ctx := context.Background()

	obs, err := observability.New(ctx, cfg.App.Name, cfg.Tracing)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer obs.Shutdown()

	// --- Upstream clients ---
	generator, err := genai.New(ctx, cfg.APIs.GenAI)
	if err != nil {
		zapLog.Fatal("generation client init failed", zap.Error(err))
	}

	var readiness []func(context.Context) error

	var esClient *database.ElasticsearchClient
	if cfg.APIs.WebSearch.Provider == config.WebSearchProviderElasticsearch {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		readiness = append(readiness, esClient.Ping)
		zapLog.Info("Elasticsearch connected successfully")
	}

	searcher, err := websearch.New(cfg.APIs.WebSearch, esClient)
	if err != nil {
		zapLog.Fatal("search client init failed", zap.Error(err))
	}

	// --- Orchestrator ---
	handlerCfg := as.LoadConfig(cfg)
	handler, err := as.NewHandler(as.HandlerOptions{
		Config:        handlerCfg,
		Generator:     generator,
		Searcher:      searcher,
		Logger:        &analyzeStatementLoggerAdapter{log},
		Observability: obs,
	})
	if err != nil {
		zapLog.Fatal("failed to create analyze-statement handler", zap.Error(err))
	}

	// --- Optional Zeebe worker ---
	var zeebe *camunda.Client
	var jobWorker *camunda.Worker
	if handlerCfg.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.Timeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		jobWorker = camunda.StartWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      as.TaskType,
			MaxJobsActive: handlerCfg.MaxJobsActive,
			Timeout:       handlerCfg.Timeout,
		}, handler.Handle, log)
		readiness = append(readiness, zeebe.HealthCheck)
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", as.TaskType))
	}

	// --- HTTP server ---
	router := api.NewRouter(api.Options{
		Analyzer:       handler,
		Logger:         log,
		ServiceName:    cfg.App.Name,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ready: func(ctx context.Context) error {
			for _, check := range readiness {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	if jobWorker != nil {
		jobWorker.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Statement analyzer stopped gracefully")
}

// analyzeStatementLoggerAdapter satisfies the worker's own Logger interface.
type analyzeStatementLoggerAdapter struct {
	logger.Logger
}

func (a *analyzeStatementLoggerAdapter) With(fields map[string]interface{}) as.Logger {
	return &analyzeStatementLoggerAdapter{a.Logger.With(fields)}
}
