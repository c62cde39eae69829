package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplyParsesOutputText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/responses", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "gpt-4.1-mini", body["model"])
		require.Equal(t, "hello there", body["input"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[
			{"type":"reasoning","role":"","content":[]},
			{"type":"message","role":"assistant","content":[
				{"type":"output_text","text":"Hi!"},
				{"type":"output_text","text":"How can I help?"}
			]}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	out, err := c.Reply(context.Background(), "hello there")
	require.NoError(t, err)
	require.Equal(t, "Hi!\nHow can I help?", out)
}

func TestReplyUpstreamErrorSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	_, err := c.Reply(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "rate limited")
}

func TestReplyEmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	_, err := c.Reply(context.Background(), "hello")
	require.Error(t, err)
}
