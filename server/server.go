package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/abhirockzz/ele-chat/assistant"
)

// Turns plays one chat turn. *Orchestrator is the production implementation.
type Turns interface {
	Take(ctx context.Context, history []assistant.Message) (TurnResult, error)
}

type App struct {
	turns Turns
}

func New(turns Turns) *App {
	return &App{turns: turns}
}

// HandleBot answers POST /api/bot with one assistant reply for the posted history.
func (app *App) HandleBot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := hlog.FromRequest(r)

	var req BotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	for i, msg := range req.Messages {
		if err := msg.Validate(); err != nil {
			sendErrorResponse(w, fmt.Sprintf("Message %d: %v", i+1, err), http.StatusBadRequest)
			return
		}
	}

	result, err := app.turns.Take(r.Context(), req.Messages)
	if err != nil {
		logger.Error().Err(err).Int("messages", len(req.Messages)).Msg("Error in assistant turn")
		sendErrorResponse(w, publicError(err), http.StatusInternalServerError)
		return
	}

	if !result.Completed() {
		logger.Info().Str("status", string(result.Status)).Msg("Run status")
		sendJSON(w, StatusResponse{Status: string(result.Status)}, http.StatusOK)
		return
	}

	sendJSON(w, BotResponse{Response: *result.Reply}, http.StatusOK)
}

// publicError maps an error chain to a summary that is safe to show to users.
func publicError(err error) string {
	switch {
	case errors.Is(err, assistant.ErrUpstreamUnavailable):
		return "The assistant service is unavailable. Please try again later."
	case errors.Is(err, assistant.ErrUpstreamRequestFailed):
		return "The assistant service could not process the conversation."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was cancelled before the assistant replied."
	}
	return "An error occurred while processing the request."
}

func sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// Helper function to send error responses
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	sendJSON(w, ErrorResponse{Error: message}, statusCode)
}
