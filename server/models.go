package server

import "github.com/abhirockzz/ele-chat/assistant"

// Request and response types
type BotRequest struct {
	Messages []assistant.Message `json:"messages"`
}

type BotResponse struct {
	Response assistant.Message `json:"response"`
}

// StatusResponse is returned instead of BotResponse when the run did not complete
type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
