package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	ssePrefix   = "data: "
	sseDone     = "[DONE]"
	healthLimit = 5 * time.Second

	// 单行最大 1MB，超长的 tool_result 也能装下
	maxLineSize = 1 << 20
)

// Client talks to the agent process inside one session container over its
// published API port.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	chatTimeout time.Duration
	prTimeout   time.Duration
	logger      *slog.Logger
}

func NewClient(baseURL string, chatTimeout, prTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		chatTimeout: chatTimeout,
		prTimeout:   prTimeout,
		logger:      logger.With("component", "agent-client"),
	}
}

// BaseURLForPort builds the loopback URL for an agent published on a host
// port.
func BaseURLForPort(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}

// StreamChat sends a message to the agent and returns a channel of decoded
// chunks. The channel is always closed; on transport failure or timeout it
// carries exactly one error chunk. Cancelling ctx stops the stream.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) <-chan StreamChunk {
	out := make(chan StreamChunk)

	go func() {
		defer close(out)

		streamCtx, cancel := context.WithTimeout(ctx, c.chatTimeout)
		defer cancel()

		body, _ := json.Marshal(req)
		httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(body))
		if err != nil {
			c.emitError(ctx, out, err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.emitError(ctx, out, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			c.emitError(ctx, out, fmt.Errorf("%w: agent returned status %d", ErrAgentUnreachable, resp.StatusCode))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, ssePrefix) {
				continue
			}
			payload := strings.TrimPrefix(line, ssePrefix)
			if payload == sseDone {
				return
			}

			var chunk StreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				c.logger.Warn("Skipping malformed agent chunk", "error", err)
				continue
			}

			select {
			case out <- chunk:
			case <-streamCtx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			c.emitError(ctx, out, err)
		}
	}()

	return out
}

// emitError maps a transport failure to a single error chunk. Caller
// cancellation is not an agent error and produces nothing; ctx here is the
// caller's context, not the per-stream deadline.
func (c *Client) emitError(ctx context.Context, out chan<- StreamChunk, err error) {
	var content string
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		content = fmt.Sprintf("%v after %s", ErrAgentTimeout, c.chatTimeout)
	case errors.Is(err, context.Canceled):
		return
	default:
		content = fmt.Sprintf("%v: %v", ErrAgentUnreachable, err)
	}

	c.logger.Error("Agent stream failed", "error", err)
	select {
	case out <- StreamChunk{Type: ChunkError, Content: content}:
	case <-ctx.Done():
	}
}

// TriggerPullRequest asks the agent to commit, push and open a PR for its
// working tree.
func (c *Client) TriggerPullRequest(ctx context.Context, req PRRequest) (*PRResult, error) {
	prCtx, cancel := context.WithTimeout(ctx, c.prTimeout)
	defer cancel()

	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(prCtx, http.MethodPost, c.baseURL+"/git/create-pr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || prCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: create-pr exceeded %s", ErrAgentTimeout, c.prTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrAgentUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent create-pr failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result PRResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode create-pr response: %w", err)
	}
	return &result, nil
}

// HealthCheck probes the agent's health endpoint with a short deadline.
func (c *Client) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthLimit)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned status %d", ErrAgentUnreachable, resp.StatusCode)
	}
	return nil
}
