package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/abhirockzz/ele-chat/assistant"
	"github.com/abhirockzz/ele-chat/server"
)

// ServerError is an error payload returned by the bot endpoint.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// botResult is the union of the three shapes the bot endpoint answers with.
type botResult struct {
	Response *assistant.Message `json:"response,omitempty"`
	Status   string             `json:"status,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Client posts histories to a running chat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server at baseURL. A nil httpClient gets a default with a
// timeout long enough for a slow turn.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Send(ctx context.Context, history []assistant.Message) (Reply, error) {
	body, err := json.Marshal(server.BotRequest{Messages: history})
	if err != nil {
		return Reply{}, fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/bot", bytes.NewReader(body))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	var result botResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Reply{}, &ServerError{StatusCode: resp.StatusCode, Message: resp.Status}
		}
		return Reply{}, fmt.Errorf("error decoding response: %w", err)
	}

	switch {
	case resp.StatusCode != http.StatusOK || result.Error != "":
		return Reply{}, &ServerError{StatusCode: resp.StatusCode, Message: result.Error}
	case result.Response != nil:
		return Reply{Message: result.Response, Status: assistant.RunStatusCompleted}, nil
	case result.Status != "":
		return Reply{Status: assistant.RunStatus(result.Status)}, nil
	}
	return Reply{}, errors.New("response carried neither a reply nor a status")
}
