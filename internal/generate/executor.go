// Package generate runs background generation tasks against an external
// generation API using an ordered model-fallback chain.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// callTimeout is the per-call deadline against the external API.
const callTimeout = 30 * time.Second

// Result is a successful generation outcome.
type Result struct {
	Output    string
	ModelUsed string
}

// StatusError is a non-2xx response from the generation API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation api returned %d: %s", e.Code, e.Body)
}

// Executor calls the generation endpoint with the first candidate model
// and advances down the chain on rate-limited or overloaded responses.
// Any other failure is fatal and aborts the chain.
type Executor struct {
	endpoint string
	apiKey   string
	models   []string
	client   *http.Client
}

// NewExecutor creates an executor. Models are tried in order, primary first.
func NewExecutor(endpoint, apiKey string, models []string) *Executor {
	return &Executor{
		endpoint: endpoint,
		apiKey:   apiKey,
		models:   models,
		client: &http.Client{
			Timeout: callTimeout,
		},
	}
}

type apiRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type apiResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Execute runs the payload through the fallback chain. On exhaustion the
// last transient error is surfaced.
func (e *Executor) Execute(ctx context.Context, payload string) (*Result, error) {
	if e.apiKey == "" {
		return nil, errors.New("generation api key is not configured")
	}
	if len(e.models) == 0 {
		return nil, errors.New("no candidate models configured")
	}

	var lastErr error
	for _, model := range e.models {
		output, err := e.callModel(ctx, model, payload)
		if err == nil {
			return &Result{Output: output, ModelUsed: model}, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		log.Printf("generate: model %s unavailable (%v), advancing", model, err)
		lastErr = err
	}

	return nil, fmt.Errorf("all candidate models exhausted: %w", lastErr)
}

func (e *Executor) callModel(ctx context.Context, model, payload string) (string, error) {
	body, err := json.Marshal(apiRequest{Model: model, Prompt: payload})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out apiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if out.Error != "" {
		return "", &StatusError{Code: resp.StatusCode, Body: out.Error}
	}
	return out.Output, nil
}

// isTransient reports whether an error should advance the chain instead
// of aborting it: rate-limited/overloaded responses and timeouts.
func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests || se.Code == http.StatusServiceUnavailable {
			return true
		}
		return strings.Contains(strings.ToLower(se.Body), "overloaded")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
