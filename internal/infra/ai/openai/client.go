package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	domagents "github.com/bryanwahyu/quorum-comply/internal/domain/agents"
	"github.com/bryanwahyu/quorum-comply/internal/domain/consensus"
	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
	"github.com/bryanwahyu/quorum-comply/internal/infra/ai/prompt"
	"github.com/bryanwahyu/quorum-comply/internal/middleware"
)

const maxTokens = 512

// Client implements the Evaluator port against any OpenAI-compatible chat
// endpoint, so one provider = one Client with its own base URL and key. An
// agent's own model (when set) overrides the provider default.
type Client struct {
	*openai.Client
	Model       string
	CallTimeout time.Duration
}

func NewClient(apiKey, model string, callTimeout time.Duration) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model, CallTimeout: callTimeout}
}

// NewClientWithBaseURL targets a non-default provider endpoint.
func NewClientWithBaseURL(apiKey, baseURL, model string, callTimeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model, CallTimeout: callTimeout}
}

// Ask sends one question to one agent and parses the structured verdict.
// The fixed per-call timeout is enforced here; never retries (retry policy
// belongs to the pool).
func (c *Client) Ask(ctx context.Context, agent domagents.Agent, q frameworks.Question) (domagents.AgentVote, error) {
	model := agent.Model
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(q)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	start := time.Now()
	middleware.IncrementEvaluatorCalls()
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		middleware.IncrementEvaluatorCallsFailed()
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return domagents.AgentVote{}, fmt.Errorf("%w: %v", domagents.ErrQuotaExceeded, err)
		}
		return domagents.AgentVote{}, fmt.Errorf("%w: %v", domagents.ErrAgentUnreachable, err)
	}
	if len(resp.Choices) == 0 {
		return domagents.AgentVote{}, fmt.Errorf("%w: empty completion", domagents.ErrAgentUnreachable)
	}

	var parsed prompt.VerdictResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return domagents.AgentVote{}, fmt.Errorf("parse evaluator verdict: %w", err)
	}

	return domagents.AgentVote{
		QuestionID: q.ID,
		AgentID:    agent.ID,
		Provider:   agent.Provider,
		Verdict:    consensus.Verdict(strings.ToLower(strings.TrimSpace(parsed.Verdict))),
		Rationale:  parsed.Rationale,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}
