package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"GENAI_API_KEY", "GENAI_PROVIDER", "GENAI_MODEL", "WEB_SEARCH_API_KEY", "WEB_SEARCH_PROVIDER",
		"ZEEBE_ADDRESS", "ELASTICSEARCH_URL", "OTEL_TRACES_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadFromFile_DefaultsAndPlaceholders(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("TEST_GEMINI_KEY", "gemini-secret")

	path := writeConfig(t, `
apis:
  genai:
    api_key: ${TEST_GEMINI_KEY}
  web_search:
    api_key: you-secret
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-secret", cfg.APIs.GenAI.APIKey)
	assert.Equal(t, GenAIProviderGemini, cfg.APIs.GenAI.Provider)
	assert.Equal(t, WebSearchProviderYou, cfg.APIs.WebSearch.Provider)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 60*time.Second, GetDuration(cfg.APIs.GenAI.Timeout))
	assert.Equal(t, 10*time.Second, GetDuration(cfg.APIs.WebSearch.Timeout))
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile_EnvOverridesEmptySecrets(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GENAI_API_KEY", "from-env")
	t.Setenv("GENAI_PROVIDER", "openai")
	t.Setenv("WEB_SEARCH_API_KEY", "search-env")

	cfg, err := LoadFromFile(writeConfig(t, "app:\n  name: analyzer\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.APIs.GenAI.APIKey)
	assert.Equal(t, GenAIProviderOpenAI, cfg.APIs.GenAI.Provider)
	assert.Equal(t, "search-env", cfg.APIs.WebSearch.APIKey)
}

func TestLoadFromFile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing generation key",
			body:    "apis:\n  web_search:\n    api_key: k\n",
			wantErr: "apis.genai.api_key is required",
		},
		{
			name:    "missing search key",
			body:    "apis:\n  genai:\n    api_key: k\n",
			wantErr: "apis.web_search.api_key is required",
		},
		{
			name:    "unknown generation provider",
			body:    "apis:\n  genai:\n    provider: bard\n    api_key: k\n  web_search:\n    api_key: k\n",
			wantErr: "not supported",
		},
		{
			name:    "elasticsearch without index",
			body:    "apis:\n  genai:\n    api_key: k\n  web_search:\n    provider: elasticsearch\ndatabase:\n  elasticsearch:\n    url: http://localhost:9200\n",
			wantErr: "apis.web_search.index is required",
		},
		{
			name:    "worker without broker",
			body:    "apis:\n  genai:\n    api_key: k\n  web_search:\n    api_key: k\nworkers:\n  analyze-statement:\n    enabled: true\n",
			wantErr: "camunda.broker_address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProviderEnv(t)
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_ElasticsearchProvider(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := LoadFromFile(writeConfig(t, `
apis:
  genai:
    api_key: k
  web_search:
    provider: elasticsearch
    index: references
database:
  elasticsearch:
    url: http://localhost:9200
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Database.Elasticsearch.GetAddresses())
	assert.Equal(t, DefaultSearchFields, cfg.APIs.WebSearch.Fields)
}

// ==========================
// Shipped configs/config.yaml
// ==========================

const shippedConfig = "../../../configs/config.yaml"

func TestLoadFromFile_ShippedConfigDefaults(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GENAI_API_KEY", "gemini-key")
	t.Setenv("WEB_SEARCH_API_KEY", "you-key")

	cfg, err := LoadFromFile(shippedConfig)
	require.NoError(t, err)

	assert.Equal(t, GenAIProviderGemini, cfg.APIs.GenAI.Provider)
	assert.Equal(t, "gemini-pro", cfg.APIs.GenAI.Model)
	assert.Equal(t, WebSearchProviderYou, cfg.APIs.WebSearch.Provider)
	assert.Equal(t, "gemini-key", cfg.APIs.GenAI.APIKey)
	assert.Equal(t, "you-key", cfg.APIs.WebSearch.APIKey)
	assert.Equal(t, TraceExporterNone, cfg.Tracing.Exporter)
}

func TestLoadFromFile_ShippedConfigEnvSelectsProviders(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GENAI_API_KEY", "openai-key")
	t.Setenv("GENAI_PROVIDER", "openai")
	t.Setenv("GENAI_MODEL", "gpt-4o")
	t.Setenv("WEB_SEARCH_PROVIDER", "elasticsearch")
	t.Setenv("ELASTICSEARCH_URL", "http://es:9200")
	t.Setenv("OTEL_TRACES_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := LoadFromFile(shippedConfig)
	require.NoError(t, err)

	assert.Equal(t, GenAIProviderOpenAI, cfg.APIs.GenAI.Provider)
	assert.Equal(t, "gpt-4o", cfg.APIs.GenAI.Model)
	assert.Equal(t, WebSearchProviderElasticsearch, cfg.APIs.WebSearch.Provider)
	assert.Equal(t, []string{"http://es:9200"}, cfg.Database.Elasticsearch.GetAddresses())
	assert.Equal(t, DefaultSearchFields, cfg.APIs.WebSearch.Fields)
	assert.Equal(t, TraceExporterOTLP, cfg.Tracing.Exporter)
	assert.Equal(t, "collector:4317", cfg.Tracing.OTLPEndpoint)
}

func TestLoadFromFile_UnknownTraceExporter(t *testing.T) {
	clearProviderEnv(t)

	_, err := LoadFromFile(writeConfig(t, "apis:\n  genai:\n    api_key: k\n  web_search:\n    api_key: k\ntracing:\n  exporter: zipkin\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracing.exporter")
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"analyze-statement": {Enabled: true, MaxJobsActive: 2, Timeout: 1000},
	}}

	assert.True(t, IsWorkerEnabled(cfg, "analyze-statement"))
	assert.False(t, IsWorkerEnabled(cfg, "unknown"))
	assert.Equal(t, 5, GetWorkerConfig(cfg, "unknown").MaxJobsActive)
}
