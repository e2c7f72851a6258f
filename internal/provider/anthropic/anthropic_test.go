package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bizq-orchestrator/internal/provider"
)

func newServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		if seen != nil {
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-20250514",
  "content": [
    {"type": "text", "text": "[\"CrumbCraft\", "},
    {"type": "text", "text": "\"ArtisanLoaf\"]"}
  ],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 10, "output_tokens": 8}
}`

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCompleteConcatenatesTextBlocks(t *testing.T) {
	t.Parallel()

	var seen map[string]any
	srv := newServer(t, http.StatusOK, okBody, &seen)

	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "anthropic", c.Name())

	text, err := c.Complete(context.Background(), "name a bakery")
	require.NoError(t, err)
	require.Equal(t, `["CrumbCraft", "ArtisanLoaf"]`, text)

	require.EqualValues(t, DefaultMaxTokens, seen["max_tokens"])
	require.EqualValues(t, DefaultTemperature, seen["temperature"])
	require.Equal(t, string(DefaultModel), seen["model"])
}

func TestGenerateThroughClient(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, okBody, nil)
	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-test", MaxTokens: 64})
	require.NoError(t, err)

	items, err := provider.New(c, 0).Generate(context.Background(), provider.Request{
		Prompt: "p", MaxResults: 5, Format: provider.FormatStructured,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"CrumbCraft", "ArtisanLoaf"}, items)
}

func TestNon2xxIsGenerationFailure(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusInternalServerError,
		`{"type":"error","error":{"type":"api_error","message":"boom"}}`, nil)
	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = provider.New(c, 0).Generate(context.Background(), provider.Request{Prompt: "p"})
	require.ErrorIs(t, err, provider.ErrGenerationFailed)
}

func TestEmptyContentIsGenerationFailure(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, `{
  "id": "msg_2",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-20250514",
  "content": [],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 10, "output_tokens": 0}
}`, nil)
	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "p")
	require.ErrorIs(t, err, ErrEmptyReply)

	items, err := provider.New(c, 0).Generate(context.Background(), provider.Request{
		Prompt: "p", MaxResults: 5, Format: provider.FormatStructured,
	})
	require.ErrorIs(t, err, provider.ErrGenerationFailed)
	require.Empty(t, items)
}
