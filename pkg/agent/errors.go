package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
)

// ErrToolIterationLimit ends a turn whose tool loop did not converge.
var ErrToolIterationLimit = errors.New("tool iteration limit reached")

// userFriendlyError turns a turn failure into text that is safe to show in
// chat. The raw error is logged by the caller.
func userFriendlyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrToolIterationLimit):
		return "I stopped after too many tool calls without finishing. Try a narrower request."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request to the model timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "I couldn't authenticate with the model API. " +
				"Please check agent.api_key in ~/.microclaw/config.json or ANTHROPIC_API_KEY."
		case http.StatusTooManyRequests:
			return "The model API is rate-limiting requests. Please try again in a moment."
		case 529, http.StatusServiceUnavailable:
			return "The model API is currently overloaded. Please try again in a moment."
		case http.StatusBadRequest:
			return "The request was rejected by the model API. Check the configured model name."
		}
	}

	return genericErrorMessage
}

const genericErrorMessage = "Something went wrong processing your message. Check the gateway logs for details."
