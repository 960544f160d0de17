package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
)

func TestOpenAICompatibleChat(t *testing.T) {
	var got struct {
		Model    string         `json:"model"`
		Messages []core.Message `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "recall", r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hi Sarah!"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatible(OpenAICompatibleConfig{
		BaseURL:      srv.URL,
		APIKey:       "secret",
		Model:        "test-model",
		AuthHeader:   "Authorization",
		AuthPrefix:   "Bearer ",
		ExtraHeaders: map[string]string{"X-Title": core.AppName},
	})

	history := []core.Message{
		{Role: core.RoleSystem, Content: "[user_essence]\nname: Sarah"},
		{Role: core.RoleUser, Content: "hello"},
	}
	reply, err := p.Chat(context.Background(), history)
	require.NoError(t, err)

	assert.Equal(t, core.Message{Role: core.RoleAssistant, Content: "Hi Sarah!"}, reply)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, history, got.Messages)
}

func TestOpenAICompatibleErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewCustomOpenAI(srv.URL, "", "m")
			_, err := p.Chat(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}})
			assert.Error(t, err)
		})
	}
}

func TestOpenAICompatibleModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"a/b","name":"Model B","context_length":8192},{"id":"c"}]}`))
	}))
	defer srv.Close()

	models, err := NewCustomOpenAI(srv.URL, "k", "m").Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Model{
		{ID: "a/b", Name: "Model B", ContextLength: 8192},
		{ID: "c", Name: "c"},
	}, models)
}

func TestAnthropicMovesSystemPrompt(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"again"}]}`))
	}))
	defer srv.Close()

	a := newAnthropic(srv.URL, "key", "claude")
	reply, err := a.Chat(context.Background(), []core.Message{
		{Role: core.RoleSystem, Content: "persona"},
		{Role: core.RoleSystem, Content: "memory"},
		{Role: core.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello again", reply.Content)
	assert.Equal(t, "persona\n\nmemory", got["system"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 1)
}

func TestAnthropicModelsPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after_id") == "" {
			_, _ = w.Write([]byte(`{"data":[{"id":"m1","display_name":"One","type":"model"}],"has_more":true,"last_id":"m1"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"m2","display_name":"Two","type":"model"}],"has_more":false}`))
	}))
	defer srv.Close()

	models, err := newAnthropic(srv.URL, "key", "claude").Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Model{{ID: "m1", Name: "One"}, {ID: "m2", Name: "Two"}}, models)
}

func TestOllamaModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
	}))
	defer srv.Close()

	models, err := NewOllama(srv.URL, "", "llama3").Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Model{{ID: "llama3", Name: "llama3", ContextLength: ollamaContextLength}}, models)
}

type namedProvider struct {
	model string
}

func (p namedProvider) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	return core.Message{Role: core.RoleAssistant, Content: p.model}, nil
}

func (p namedProvider) Models(ctx context.Context) ([]core.Model, error) {
	return []core.Model{{ID: p.model}}, nil
}

func TestDynamicProviderSetModel(t *testing.T) {
	ctx := context.Background()
	factory := func(_ context.Context, cfg config.AppConfig) (core.AIProvider, error) {
		if cfg.Model == "broken" {
			return nil, errors.New("no such model")
		}
		return namedProvider{model: cfg.Model}, nil
	}

	d, err := newDynamicProvider(ctx, config.AppConfig{Provider: "openrouter", Model: "first"}, factory)
	require.NoError(t, err)

	reply, err := d.Chat(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", reply.Content)

	require.NoError(t, d.SetModel(ctx, "second"))
	assert.Equal(t, "second", d.GetModel())
	reply, err = d.Chat(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", reply.Content)

	require.Error(t, d.SetModel(ctx, "broken"))
	assert.Equal(t, "second", d.GetModel())
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), config.AppConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)

	_, err = NewProvider(context.Background(), config.AppConfig{Provider: "custom"})
	assert.Error(t, err)
}
