package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bayescal/domain/core"
)

// EvaluateRequest is the JSON body sent to a remote simulator.
type EvaluateRequest struct {
	Parameters map[string]float64 `json:"parameters"`
	Vector     []float64          `json:"vector"`
}

// EvaluateResponse is the JSON body returned by a remote simulator.
type EvaluateResponse struct {
	Outcome *float64 `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// HTTPEvaluator calls POST {BaseURL}/evaluate.
type HTTPEvaluator struct {
	baseURL string
	names   []string
	client  *http.Client
}

// NewHTTPEvaluator creates a client for a simulator service. names are
// the parameter names in vector order.
func NewHTTPEvaluator(baseURL string, names []string, client *http.Client) (*HTTPEvaluator, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, core.NewConfigError("simulator url", "is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTPEvaluator{
		baseURL: strings.TrimRight(baseURL, "/"),
		names:   append([]string(nil), names...),
		client:  client,
	}, nil
}

// Evaluate posts one vector and decodes the outcome.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, vector []float64) (float64, error) {
	if len(vector) != len(e.names) {
		return 0, core.NewEvaluationError(vector, fmt.Sprintf("expected %d parameters", len(e.names)), nil)
	}
	body := EvaluateRequest{Parameters: make(map[string]float64, len(vector)), Vector: vector}
	for i, name := range e.names {
		body.Parameters[name] = vector[i]
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, core.NewEvaluationError(vector, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/evaluate", bytes.NewReader(payload))
	if err != nil {
		return 0, core.NewEvaluationError(vector, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, core.NewEvaluationError(vector, "simulator unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, core.NewEvaluationError(vector, "read response", err)
	}

	var out EvaluateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, core.NewEvaluationError(vector, fmt.Sprintf("status %d: undecodable body", resp.StatusCode), err)
	}
	if resp.StatusCode != http.StatusOK {
		reason := out.Error
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return 0, core.NewEvaluationError(vector, fmt.Sprintf("status %d: %s", resp.StatusCode, reason), nil)
	}
	if out.Outcome == nil {
		return 0, core.NewEvaluationError(vector, "response has no outcome", nil)
	}
	return *out.Outcome, nil
}
