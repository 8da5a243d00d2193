package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, 2*time.Second, slog.Default())
}

func collect(ch <-chan StreamChunk) []StreamChunk {
	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestStreamChatDecodesChunks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"thinking\",\"content\":\"hmm\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"tool_call\",\"tool_name\":\"write_file\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"text\",\"content\":\"done it\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	chunks := collect(client.StreamChat(context.Background(), ChatRequest{Message: "hello"}))
	require.Len(t, chunks, 3)
	assert.Equal(t, ChunkThinking, chunks[0].Type)
	assert.Equal(t, "hmm", chunks[0].Content)
	assert.Equal(t, "write_file", chunks[1].ToolName)
	assert.Equal(t, ChunkText, chunks[2].Type)
}

func TestStreamChatSkipsMalformedChunks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: not json at all\n\n")
		fmt.Fprint(w, ": comment line\n\n")
		fmt.Fprint(w, "data: {\"type\":\"text\",\"content\":\"still here\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	chunks := collect(client.StreamChat(context.Background(), ChatRequest{Message: "hello"}))
	require.Len(t, chunks, 1)
	assert.Equal(t, "still here", chunks[0].Content)
}

func TestStreamChatUnreachableEmitsSingleErrorChunk(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 2*time.Second, 2*time.Second, slog.Default())

	chunks := collect(client.StreamChat(context.Background(), ChatRequest{Message: "hello"}))
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkError, chunks[0].Type)
	assert.Contains(t, chunks[0].Content, "agent not reachable")
}

func TestStreamChatNonOKStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	chunks := collect(client.StreamChat(context.Background(), ChatRequest{Message: "hello"}))
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkError, chunks[0].Type)
}

func TestStreamChatTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timeout test in short mode")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 200*time.Millisecond, time.Second, slog.Default())
	chunks := collect(client.StreamChat(context.Background(), ChatRequest{Message: "hello"}))
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkError, chunks[0].Type)
	assert.Contains(t, chunks[0].Content, "timed out")
}

func TestStreamChatCallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"text\",\"content\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(srv.URL, 10*time.Second, time.Second, slog.Default())

	ch := client.StreamChat(ctx, ChatRequest{Message: "hello"})
	first := <-ch
	assert.Equal(t, "first", first.Content)
	cancel()

	// 取消后通道应当关闭，且不产生 error chunk
	for c := range ch {
		assert.NotEqual(t, ChunkError, c.Type)
	}
}

func TestTriggerPullRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/git/create-pr", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"branch":"vibes/add-tests","prUrl":"https://github.com/o/r/pull/7","output":"pushed"}`)
	}))

	result, err := client.TriggerPullRequest(context.Background(), PRRequest{FeatureName: "add-tests"})
	require.NoError(t, err)
	assert.Equal(t, "vibes/add-tests", result.Branch)
	assert.Equal(t, "https://github.com/o/r/pull/7", result.PRURL)
}

func TestTriggerPullRequestAgentFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "git push rejected")
	}))

	_, err := client.TriggerPullRequest(context.Background(), PRRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestHealthCheck(t *testing.T) {
	healthy := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	assert.NoError(t, healthy.HealthCheck(context.Background()))

	down := NewClient("http://127.0.0.1:1", time.Second, time.Second, slog.Default())
	assert.ErrorIs(t, down.HealthCheck(context.Background()), ErrAgentUnreachable)
}
