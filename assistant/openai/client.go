// Package openai adapts the hosted OpenAI Assistants API to assistant.Client.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/abhirockzz/ele-chat/assistant"
)

// Config for the hosted assistant. APIKey is checked per call so a server without a credential
// still starts and reports the upstream as unavailable.
type Config struct {
	APIKey       string
	AssistantID  string
	BaseURL      string
	Instructions string
}

type Client struct {
	api          *goopenai.Client
	hasKey       bool
	assistantID  string
	instructions string
}

func New(cfg Config) (*Client, error) {
	if cfg.AssistantID == "" {
		return nil, errors.New("assistant id is required")
	}

	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:          goopenai.NewClientWithConfig(clientConfig),
		hasKey:       cfg.APIKey != "",
		assistantID:  cfg.AssistantID,
		instructions: cfg.Instructions,
	}, nil
}

func (c *Client) CreateThread(ctx context.Context) (assistant.Thread, error) {
	if !c.hasKey {
		return assistant.Thread{}, fmt.Errorf("create thread: %w: no API key configured", assistant.ErrUpstreamUnavailable)
	}

	thread, err := c.api.CreateThread(ctx, goopenai.ThreadRequest{})
	if err != nil {
		return assistant.Thread{}, fmt.Errorf("create thread: %w: %w", assistant.ErrUpstreamUnavailable, err)
	}
	return assistant.Thread{ID: thread.ID}, nil
}

func (c *Client) CreateMessage(ctx context.Context, threadID string, msg assistant.Message) error {
	_, err := c.api.CreateMessage(ctx, threadID, goopenai.MessageRequest{
		Role:    string(msg.Role),
		Content: msg.Content,
	})
	if err != nil {
		return classify("create message", err)
	}
	return nil
}

func (c *Client) CreateRun(ctx context.Context, threadID string) (assistant.Run, error) {
	run, err := c.api.CreateRun(ctx, threadID, goopenai.RunRequest{
		AssistantID:  c.assistantID,
		Instructions: c.instructions,
	})
	if err != nil {
		return assistant.Run{}, classify("create run", err)
	}
	return toRun(run), nil
}

func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return assistant.Run{}, classify("retrieve run", err)
	}
	return toRun(run), nil
}

// ListMessages returns the first page of the thread, newest first. A fresh thread holds the
// replayed history plus the run output, so one page of 100 covers every turn we create.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	limit := 100
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, classify("list messages", err)
	}

	messages := make([]assistant.Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		messages = append(messages, assistant.Message{
			Role:    assistant.Role(m.Role),
			Content: firstText(m),
		})
	}
	return messages, nil
}

func toRun(r goopenai.Run) assistant.Run {
	run := assistant.Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   assistant.RunStatus(r.Status),
	}
	if r.LastError != nil {
		run.LastError = r.LastError.Message
	}
	return run
}

// firstText returns the text of the first content part, or assistant.NoValidResponse.
func firstText(m goopenai.Message) string {
	if len(m.Content) == 0 || m.Content[0].Text == nil || m.Content[0].Text.Value == "" {
		return assistant.NoValidResponse
	}
	return m.Content[0].Text.Value
}

// classify wraps err as a failed request, or as an unavailable upstream when the credential was
// rejected.
func classify(op string, err error) error {
	kind := assistant.ErrUpstreamRequestFailed
	if status := httpStatus(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = assistant.ErrUpstreamUnavailable
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

func httpStatus(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
