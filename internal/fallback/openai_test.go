package fallback

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
)

func completionResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func newTestClient(url string) *Client {
	return NewClient(Config{APIKey: "test-key", APIBase: url, Model: "test-model"})
}

func TestClient_Generate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(completionResponse("  generated reply  ")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	reply, err := c.Generate(context.Background(), "write me a poem",
		[]Message{{Role: "user", Content: "earlier question"}, {Role: "assistant", Content: "earlier answer"}})
	require.NoError(t, err)
	assert.Equal(t, "generated reply", reply)

	// system + 2 history + question
	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 4)
	first := msgs[0].(map[string]any)
	last := msgs[3].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "user", last["role"])
	assert.Equal(t, "write me a poem", last["content"])
}

func TestClient_ServerErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "q", nil)
	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)
}

func TestClient_ContentFilterIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"flagged","type":"invalid_request_error","code":"content_filter"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "q", nil)
	var cpe *ContentPolicyError
	require.ErrorAs(t, err, &cpe)
	assert.Equal(t, "flagged", cpe.Reason)
}

func TestClient_TimeoutIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(completionResponse("late")))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Generate(ctx, "q", nil)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_EmptyChoicesIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "q", nil)
	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)
}

func TestClassifyHTTPError(t *testing.T) {
	err := classifyHTTPError(429, []byte(`{"error":{"message":"slow down","type":"rate_limit_error"}}`))
	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)

	err = classifyHTTPError(400, []byte(`{"error":{"message":"no","type":"content_policy_violation"}}`))
	var cpe *ContentPolicyError
	assert.ErrorAs(t, err, &cpe)
}
