/*
 * This file is part of Verba (https://github.com/verbalabs/verba).
 * Copyright (C) 2025 Verba Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package replicate is a minimal client for the Replicate prediction API:
// create a prediction, poll it to a terminal state, and fetch its output
// file. Only the endpoints the synthesis and transcription paths need are
// covered.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/logging"
)

// ErrMissingToken is returned before any network call when no API credential
// is configured. The bridge surfaces it as a per-connection error frame; the
// HTTP handlers map it to a 500.
var ErrMissingToken = errors.New("missing REPLICATE_API_TOKEN")

// UpstreamError is a failure reported by the provider itself: a non-2xx API
// response, a failed or canceled prediction, or an output fetch error. HTTP
// handlers map it to a 502.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream error: %s", e.Message)
}

// Prediction is the subset of the prediction resource the poll loop needs.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Terminal reports whether the prediction has finished, successfully or not.
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// OutputURL extracts the output file URL. Models return either a bare string
// or an array of strings; an array yields its first element.
func (p *Prediction) OutputURL() (string, error) {
	if len(p.Output) == 0 {
		return "", fmt.Errorf("prediction %s has no output", p.ID)
	}

	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single == "" {
			return "", fmt.Errorf("prediction %s returned an empty output URL", p.ID)
		}
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}

	return "", fmt.Errorf("prediction %s output has unexpected shape", p.ID)
}

// Client talks to the Replicate REST API. The api client carries a request
// timeout; the stream client does not, because http.Client.Timeout also
// bounds body reads and output downloads can outlive any fixed deadline.
// Cancellation of downloads is the caller's context's job.
type Client struct {
	baseURL      string
	token        string
	apiClient    *http.Client
	streamClient *http.Client
}

func NewClient(cfg config.ReplicateConfig) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.APIToken,
		apiClient:    &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

// HasToken reports whether a credential is configured. Callers use it for
// preflight checks so they can fail before opening an upstream session.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// CreatePrediction starts a run of a named model ("owner/name") via the
// model-scoped endpoint.
func (c *Client) CreatePrediction(ctx context.Context, model string, input map[string]any) (*Prediction, error) {
	url := fmt.Sprintf("%s/v1/models/%s/predictions", c.baseURL, model)
	return c.postPrediction(ctx, url, map[string]any{"input": input})
}

// CreatePredictionFromVersion starts a run of a pinned model version via the
// generic predictions endpoint.
func (c *Client) CreatePredictionFromVersion(ctx context.Context, version string, input map[string]any) (*Prediction, error) {
	url := c.baseURL + "/v1/predictions"
	return c.postPrediction(ctx, url, map[string]any{"version": version, "input": input})
}

func (c *Client) postPrediction(ctx context.Context, url string, payload map[string]any) (*Prediction, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.errorFromResponse(resp)
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("failed to decode prediction response: %w", err)
	}
	return &pred, nil
}

// GetPrediction fetches the current state of a prediction.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}

	url := fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.errorFromResponse(resp)
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}
	return &pred, nil
}

// Wait polls the prediction at a fixed interval until it reaches a terminal
// state, the attempt budget runs out, or the context is canceled. It returns
// the succeeded prediction or an UpstreamError for failed runs.
func (c *Client) Wait(ctx context.Context, pred *Prediction, interval time.Duration, maxAttempts int) (*Prediction, error) {
	current := pred
	for attempt := 0; !current.Terminal(); attempt++ {
		if attempt >= maxAttempts {
			return nil, &UpstreamError{Message: fmt.Sprintf("prediction %s did not finish after %d polls", current.ID, maxAttempts)}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		next, err := c.GetPrediction(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		current = next

		logging.LogUpstreamCall("replicate", "poll",
			zap.String("prediction_id", current.ID),
			zap.String("status", current.Status),
			zap.Int("attempt", attempt+1),
		)
	}

	if current.Status != "succeeded" {
		msg := current.Error
		if msg == "" {
			msg = "prediction " + current.Status
		}
		return nil, &UpstreamError{Message: msg}
	}
	return current, nil
}

// OpenOutput opens the prediction's output file for streaming. The caller
// owns the returned body and must close it.
func (c *Client) OpenOutput(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create output request: %w", err)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("output fetch failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode, Message: "output fetch returned " + resp.Status}
	}
	return resp.Body, nil
}

// DownloadOutput reads the prediction's entire output file into memory.
func (c *Client) DownloadOutput(ctx context.Context, url string) ([]byte, error) {
	body, err := c.OpenOutput(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	return data, nil
}

// errorFromResponse extracts the provider's {"detail": "..."} message when
// present, falling back to the raw body.
func (c *Client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail struct {
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		msg = detail.Detail
	}
	if msg == "" {
		msg = resp.Status
	}

	return &UpstreamError{Status: resp.StatusCode, Message: msg}
}
