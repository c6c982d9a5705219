package analyzestatement

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"statement-analyzer/internal/common/config"
	"statement-analyzer/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string) ([]Hit, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Hit), args.Error(1)
}

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

// ==========================
// Test Helpers
// ==========================

func createTestConfig() *Config {
	return &Config{
		MaxJobsActive:     1,
		Timeout:           5 * time.Second,
		GenerationTimeout: 2 * time.Second,
		SearchTimeout:     2 * time.Second,
	}
}

func newTestHandler(t *testing.T, cfg *Config) (*Handler, *MockGenerator, *MockSearcher) {
	t.Helper()
	gen := new(MockGenerator)
	search := new(MockSearcher)

	h, err := NewHandler(HandlerOptions{
		Config:    cfg,
		Generator: gen,
		Searcher:  search,
		Logger:    NewTestLogger(t),
	})
	require.NoError(t, err)
	return h, gen, search
}

func createMockJob(key int64, variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "fact-check",
		ElementId:          "Activity_AnalyzeStatement",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          variables,
	}}
}

// ==========================
// Verdict Detection
// ==========================

func TestIsFlagged(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{"This statement is not accurate.", true},
		{"NOT ACCURATE: the sky is blue.", true},
		{"False. The sky appears blue.", true},
		{"The claim is a falsehood.", true},
		{"This statement is accurate.", false},
		{"The statement is inaccurate.", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.verdict, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFlagged(tt.verdict))
		})
	}
}

func TestBuildPromptAndQuery(t *testing.T) {
	assert.Equal(t,
		"Is the following statement accurate? Provide a brief explanation. Statement: The sky is green.",
		BuildPrompt("The sky is green."))
	assert.Equal(t, "Provide sources for: The sky is green.", BuildQuery("The sky is green."))
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute_NotFlagged(t *testing.T) {
	h, gen, search := newTestHandler(t, createTestConfig())

	gen.On("Generate", mock.Anything, BuildPrompt("The Earth orbits the Sun.")).
		Return("This statement is accurate. The Earth completes an orbit every year.", nil)

	output, err := h.Execute(context.Background(), &Input{Statement: "The Earth orbits the Sun."})

	require.NoError(t, err)
	assert.Equal(t, "The Earth orbits the Sun.", output.Statement)
	assert.Equal(t, "This statement is accurate. The Earth completes an orbit every year.", output.Analysis)
	assert.NotNil(t, output.Sources)
	assert.Empty(t, output.Sources)
	search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)

	raw, err := json.Marshal(output)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"statement": "The Earth orbits the Sun.",
		"analysis": "This statement is accurate. The Earth completes an orbit every year.",
		"sources": []
	}`, string(raw))
}

func TestHandler_Execute_FlaggedCollectsSources(t *testing.T) {
	tests := []struct {
		name    string
		verdict string
		hits    []Hit
		want    []string
	}{
		{
			name:    "not accurate keeps order",
			verdict: "This statement is not accurate; the sky is blue.",
			hits: []Hit{
				{URL: "https://a.example"},
				{URL: "https://b.example"},
			},
			want: []string{"https://a.example", "https://b.example"},
		},
		{
			name:    "false skips hits without url",
			verdict: "False. Rayleigh scattering makes it blue.",
			hits: []Hit{
				{URL: "https://a.example"},
				{Title: "no url"},
				{URL: "https://b.example"},
			},
			want: []string{"https://a.example", "https://b.example"},
		},
		{
			name:    "empty url is skipped like a missing one",
			verdict: "This statement is not accurate.",
			hits: []Hit{
				{URL: "", Title: "blank"},
				{URL: "https://c.example"},
			},
			want: []string{"https://c.example"},
		},
		{
			name:    "zero hits",
			verdict: "This is false.",
			hits:    []Hit{},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, gen, search := newTestHandler(t, createTestConfig())

			gen.On("Generate", mock.Anything, BuildPrompt("The sky is green.")).Return(tt.verdict, nil)
			search.On("Search", mock.Anything, "Provide sources for: The sky is green.").Return(tt.hits, nil)

			output, err := h.Execute(context.Background(), &Input{Statement: "The sky is green."})

			require.NoError(t, err)
			assert.Equal(t, tt.verdict, output.Analysis)
			assert.Equal(t, tt.want, output.Sources)
			search.AssertNumberOfCalls(t, "Search", 1)
		})
	}
}

func TestHandler_Execute_StatementIsVerbatim(t *testing.T) {
	h, gen, _ := newTestHandler(t, createTestConfig())
	statement := "  \"Water boils at 50°C\" at sea level\n"

	gen.On("Generate", mock.Anything, BuildPrompt(statement)).Return("Accurate enough.", nil)

	output, err := h.Execute(context.Background(), &Input{Statement: statement})

	require.NoError(t, err)
	assert.Equal(t, statement, output.Statement)
	gen.AssertExpectations(t)
}

func TestHandler_Execute_ValidationError(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
	}{
		{name: "nil input", input: nil},
		{name: "empty statement", input: &Input{Statement: ""}},
		{name: "whitespace statement", input: &Input{Statement: " \t\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, gen, search := newTestHandler(t, createTestConfig())

			output, err := h.Execute(context.Background(), tt.input)

			assert.Nil(t, output)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrValidation)
			gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
			search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_Execute_GenerationFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name:    "typed unavailable",
			err:     errors.NewUpstreamUnavailableError("generation", stderrors.New("503")),
			wantErr: errors.ErrUpstreamUnavailable,
		},
		{
			name:    "typed auth",
			err:     errors.NewUpstreamAuthError("generation", stderrors.New("401")),
			wantErr: errors.ErrUpstreamAuthFailed,
		},
		{
			name:    "plain error",
			err:     stderrors.New("connection refused"),
			wantErr: errors.ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, gen, search := newTestHandler(t, createTestConfig())
			gen.On("Generate", mock.Anything, mock.Anything).Return("", tt.err)

			output, err := h.Execute(context.Background(), &Input{Statement: "The sky is green."})

			assert.Nil(t, output)
			assert.ErrorIs(t, err, tt.wantErr)
			search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_Execute_GenerationTimeout(t *testing.T) {
	cfg := createTestConfig()
	cfg.GenerationTimeout = 50 * time.Millisecond
	h, gen, search := newTestHandler(t, cfg)

	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	start := time.Now()
	_, err := h.Execute(context.Background(), &Input{Statement: "The sky is green."})

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUpstreamTimeout)
	assert.Less(t, time.Since(start), time.Second)
	search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestHandler_Execute_SearchFailures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantErr     error
		wantSources []string
	}{
		{
			name:        "malformed degrades to empty sources",
			err:         errors.NewUpstreamMalformedError("search", stderrors.New("invalid character '<'")),
			wantSources: []string{},
		},
		{
			name:    "auth aborts",
			err:     errors.NewUpstreamAuthError("search", stderrors.New("401")),
			wantErr: errors.ErrUpstreamAuthFailed,
		},
		{
			name:    "unavailable aborts",
			err:     errors.NewUpstreamUnavailableError("search", stderrors.New("500")),
			wantErr: errors.ErrUpstreamUnavailable,
		},
		{
			name:    "timeout aborts",
			err:     errors.NewUpstreamTimeoutError("search", context.DeadlineExceeded),
			wantErr: errors.ErrUpstreamTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, gen, search := newTestHandler(t, createTestConfig())
			gen.On("Generate", mock.Anything, mock.Anything).Return("This statement is not accurate.", nil)
			search.On("Search", mock.Anything, mock.Anything).Return(nil, tt.err)

			output, err := h.Execute(context.Background(), &Input{Statement: "The sky is green."})

			if tt.wantErr != nil {
				assert.Nil(t, output)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "This statement is not accurate.", output.Analysis)
			assert.Equal(t, tt.wantSources, output.Sources)
		})
	}
}

func TestHandler_Execute_SearchTimeout(t *testing.T) {
	cfg := createTestConfig()
	cfg.SearchTimeout = 50 * time.Millisecond
	h, gen, search := newTestHandler(t, cfg)

	gen.On("Generate", mock.Anything, mock.Anything).Return("False.", nil)
	search.On("Search", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := h.Execute(context.Background(), &Input{Statement: "The sky is green."})

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUpstreamTimeout)
	stdErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, serviceSearch, stdErr.Service)
}

// ==========================
// Job Processing
// ==========================

func TestHandler_Process(t *testing.T) {
	h, gen, _ := newTestHandler(t, createTestConfig())
	gen.On("Generate", mock.Anything, mock.Anything).Return("Accurate.", nil)

	output, err := h.process(context.Background(), createMockJob(1, `{"statement":"Paris is in France."}`))
	require.NoError(t, err)
	assert.Equal(t, "Paris is in France.", output.Statement)

	_, err = h.process(context.Background(), createMockJob(2, `not json`))
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = h.process(context.Background(), createMockJob(3, `{}`))
	assert.ErrorIs(t, err, errors.ErrValidation)
}

// ==========================
// Construction & Config
// ==========================

func TestNewHandler_Validation(t *testing.T) {
	log := NewTestLogger(t)

	_, err := NewHandler(HandlerOptions{Searcher: new(MockSearcher), Logger: log})
	assert.Error(t, err)

	_, err = NewHandler(HandlerOptions{Generator: new(MockGenerator), Logger: log})
	assert.Error(t, err)

	_, err = NewHandler(HandlerOptions{Generator: new(MockGenerator), Searcher: new(MockSearcher)})
	assert.Error(t, err)

	bad := createTestConfig()
	bad.SearchTimeout = 0
	_, err = NewHandler(HandlerOptions{Config: bad, Generator: new(MockGenerator), Searcher: new(MockSearcher), Logger: log})
	assert.ErrorContains(t, err, "search_timeout")

	h, err := NewHandler(HandlerOptions{Generator: new(MockGenerator), Searcher: new(MockSearcher), Logger: log})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().GenerationTimeout, h.config.GenerationTimeout)
}

func TestLoadConfig(t *testing.T) {
	appCfg := &config.Config{
		APIs: config.APIsConfig{
			GenAI:     config.GenAIConfig{Timeout: 30000},
			WebSearch: config.WebSearchConfig{Timeout: 5000},
		},
		Workers: map[string]config.WorkerConfig{
			TaskType: {Enabled: true, MaxJobsActive: 8, Timeout: 45000},
		},
	}

	cfg := LoadConfig(appCfg)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 8, cfg.MaxJobsActive)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, 5*time.Second, cfg.SearchTimeout)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultConfig(), LoadConfig(nil))
}
