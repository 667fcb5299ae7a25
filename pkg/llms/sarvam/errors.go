package sarvam

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// AuthenticationError is returned when the subscription key is missing or invalid.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "invalid or missing API key"
	}
	return e.Message
}

// ValidationError is returned for 400 and 422 responses.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("validation error (%d)", e.Status)
	}
	return "validation error: " + e.Message
}

// APIError is returned for general API errors.
type APIError struct {
	Status    int
	Message   string
	RequestID string
	Body      []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return "resource not found"
	}
	return e.Message
}

// RateLimitError is returned when the rate limit or credit quota is exceeded.
type RateLimitError struct {
	Message    string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded"
	}
	return e.Message
}

// InternalServerError is returned for 5xx errors.
type InternalServerError struct {
	Status  int
	Message string
}

func (e *InternalServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("internal server error (%d)", e.Status)
	}
	return e.Message
}

// ConnectionError is returned when a connection fails.
type ConnectionError struct {
	Message string
}

func (e *ConnectionError) Error() string {
	if e.Message == "" {
		return "failed to connect to the API"
	}
	return e.Message
}

// errorBody covers both error shapes the API returns:
// {"error":{"message":...,"request_id":...}} and {"detail":...}.
type errorBody struct {
	Error *struct {
		Message   string `json:"message"`
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	} `json:"error"`
	Detail any `json:"detail"`
}

// handleAPIError parses an HTTP response and returns the appropriate error.
func handleAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)

	message := strings.TrimSpace(string(body))
	requestID := ""
	switch {
	case parsed.Error != nil && parsed.Error.Message != "":
		message = parsed.Error.Message
		requestID = parsed.Error.RequestID
	case parsed.Detail != nil:
		if s, ok := parsed.Detail.(string); ok {
			message = s
		} else if data, err := json.Marshal(parsed.Detail); err == nil {
			message = string(data)
		}
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Status: resp.StatusCode, Message: message}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthenticationError{Message: message}
	case http.StatusNotFound:
		return &NotFoundError{Message: message}
	case http.StatusTooManyRequests:
		retryAfter := 0
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			retryAfter, _ = strconv.Atoi(ra)
		}
		return &RateLimitError{Message: message, RetryAfter: retryAfter}
	}

	if resp.StatusCode >= 500 {
		return &InternalServerError{Status: resp.StatusCode, Message: message}
	}

	return &APIError{Status: resp.StatusCode, Message: message, RequestID: requestID, Body: body}
}
