package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/fyrsmithlabs/insightflow/internal/config"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/telemetry"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	calls    int
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func answer(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func textOf(t *testing.T, mc llms.MessageContent) string {
	t.Helper()
	require.Len(t, mc.Parts, 1)
	part, ok := mc.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func newTestGateway(m llms.Model, opts ...Option) *Gateway {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	opts = append([]Option{WithMetrics(newMetrics(mp.Meter(instrumentationName), logging.NewNop()))}, opts...)
	return NewGateway(m, "test-model", nil, opts...)
}

func TestGateway_Generate(t *testing.T) {
	m := &fakeModel{resp: answer("Refunds take 14 days (p. 2).")}
	g := newTestGateway(m)

	got, err := g.Generate(context.Background(), "be strict", "Context:\nx\n\nQuestion: y\nAnswer:")
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 14 days (p. 2).", got)

	require.Equal(t, 1, m.calls)
	require.Len(t, m.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.messages[0].Role)
	assert.Equal(t, "be strict", textOf(t, m.messages[0]))
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[1].Role)
	assert.Equal(t, "Context:\nx\n\nQuestion: y\nAnswer:", textOf(t, m.messages[1]))
	assert.InDelta(t, DefaultTemperature, m.opts.Temperature, 1e-9)
}

func TestGateway_Generate_Temperature(t *testing.T) {
	m := &fakeModel{resp: answer("ok")}
	g := newTestGateway(m, WithTemperature(0.7))

	_, err := g.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, m.opts.Temperature, 1e-9)
}

func TestGateway_Generate_Failures(t *testing.T) {
	boom := errors.New("upstream 502")

	tests := []struct {
		name  string
		model *fakeModel
	}{
		{name: "model error", model: &fakeModel{err: boom}},
		{name: "nil response", model: &fakeModel{}},
		{name: "no choices", model: &fakeModel{resp: &llms.ContentResponse{}}},
		{name: "nil choice", model: &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{nil}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestGateway(tt.model).Generate(context.Background(), "s", "u")
			assert.ErrorIs(t, err, ErrProviderFailure)
		})
	}

	_, err := newTestGateway(&fakeModel{err: boom}).Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, boom)
}

func TestGateway_Generate_EmptyAnswerIsNotAnError(t *testing.T) {
	got, err := newTestGateway(&fakeModel{resp: answer("")}).Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGateway_RateLimitHonoursContext(t *testing.T) {
	m := &fakeModel{resp: answer("ok")}
	g := newTestGateway(m, WithRateLimit(0.01))

	_, err := g.Generate(context.Background(), "s", "u")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, "s", "u")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProviderFailure)
	assert.Equal(t, 1, m.calls)
}

func TestGateway_RecordsSpanAndMetrics(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	restore := tt.Install()
	defer restore()

	g := NewGateway(&fakeModel{resp: answer("ok")}, "gpt-4o-mini", logging.NewNop())
	_, err := g.Generate(context.Background(), "s", "u")
	require.NoError(t, err)

	tt.AssertSpanExists(t, "generation.generate")
	tt.AssertSpanAttribute(t, "generation.generate", "llm.model", "gpt-4o-mini")

	names, err := tt.MetricNames(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "insightflow.generation.duration_seconds")
	assert.Contains(t, names, "insightflow.generation.requests_total")
}

func TestNewModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := config.Default()
	_, _, err := NewModel(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig, "openai without key or base url")

	cfg.OpenAI.APIKey = "sk-test"
	_, name, err := NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", name)

	cfg.Chat.Provider = "ollama"
	cfg.Chat.Model = "llama3.1"
	_, name, err = NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", name)

	cfg.Chat.Model = ""
	_, _, err = NewModel(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Chat.Provider = "bard"
	_, _, err = NewModel(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAIGateway_EndToEnd(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "I don't know."}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Chat.BaseURL = srv.URL
	cfg.Chat.Temperature = 0.2

	g, err := NewGatewayFromConfig(cfg, logging.NewNop())
	require.NoError(t, err)

	got, err := g.Generate(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", got)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}
