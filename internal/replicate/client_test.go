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

package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/verbalabs/verba-bridge/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.ReplicateConfig{
		APIToken: "test-token",
		BaseURL:  baseURL,
	})
}

func TestCreatePrediction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models/minimax/speech-02-turbo/predictions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Token test-token" {
			t.Errorf("Unexpected auth header: %s", auth)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		input, ok := payload["input"].(map[string]any)
		if !ok || input["text"] != "Hello" {
			t.Errorf("Unexpected input payload: %v", payload["input"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "pred-1", "status": "starting"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	pred, err := client.CreatePrediction(context.Background(), "minimax/speech-02-turbo", map[string]any{"text": "Hello"})
	if err != nil {
		t.Fatalf("CreatePrediction failed: %v", err)
	}
	if pred.ID != "pred-1" {
		t.Errorf("Expected prediction ID pred-1, got %s", pred.ID)
	}
	if pred.Terminal() {
		t.Error("Starting prediction should not be terminal")
	}
}

func TestCreatePredictionFromVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/predictions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}

		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["version"] != "abc123" {
			t.Errorf("Expected version abc123, got %v", payload["version"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "pred-2", "status": "starting"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	pred, err := client.CreatePredictionFromVersion(context.Background(), "abc123", map[string]any{"audio": "data:..."})
	if err != nil {
		t.Fatalf("CreatePredictionFromVersion failed: %v", err)
	}
	if pred.ID != "pred-2" {
		t.Errorf("Expected prediction ID pred-2, got %s", pred.ID)
	}
}

func TestCreatePrediction_MissingToken(t *testing.T) {
	client := NewClient(config.ReplicateConfig{BaseURL: "http://unused"})

	_, err := client.CreatePrediction(context.Background(), "minimax/speech-02-turbo", nil)
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("Expected ErrMissingToken, got %v", err)
	}
	if client.HasToken() {
		t.Error("HasToken should be false without a credential")
	}
}

func TestCreatePrediction_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "invalid voice_id"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreatePrediction(context.Background(), "minimax/speech-02-turbo", nil)

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", upstream.Status)
	}
	if upstream.Message != "invalid voice_id" {
		t.Errorf("Expected detail message, got %q", upstream.Message)
	}
}

func TestWait_PollsUntilSucceeded(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/predictions/pred-3" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		polls++
		status := "processing"
		var output any
		if polls >= 3 {
			status = "succeeded"
			output = "https://example.com/out.mp3"
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "pred-3", "status": status, "output": output})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	start := &Prediction{ID: "pred-3", Status: "starting"}

	final, err := client.Wait(context.Background(), start, time.Millisecond, 10)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if polls != 3 {
		t.Errorf("Expected 3 polls, got %d", polls)
	}

	url, err := final.OutputURL()
	if err != nil {
		t.Fatalf("OutputURL failed: %v", err)
	}
	if url != "https://example.com/out.mp3" {
		t.Errorf("Unexpected output URL: %s", url)
	}
}

func TestWait_FailedPrediction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "pred-4", "status": "failed", "error": "model crashed"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	start := &Prediction{ID: "pred-4", Status: "starting"}

	_, err := client.Wait(context.Background(), start, time.Millisecond, 10)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Message != "model crashed" {
		t.Errorf("Expected provider error message, got %q", upstream.Message)
	}
}

func TestWait_AttemptBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "pred-5", "status": "processing"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	start := &Prediction{ID: "pred-5", Status: "starting"}

	_, err := client.Wait(context.Background(), start, time.Millisecond, 3)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError after exhausting polls, got %v", err)
	}
}

func TestWait_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "pred-6", "status": "processing"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Wait(ctx, &Prediction{ID: "pred-6", Status: "starting"}, time.Hour, 10)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestOutputURL_Shapes(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected string
		wantErr  bool
	}{
		{name: "String output", output: `"https://example.com/a.mp3"`, expected: "https://example.com/a.mp3"},
		{name: "Array output", output: `["https://example.com/b.mp3","https://example.com/c.mp3"]`, expected: "https://example.com/b.mp3"},
		{name: "Empty string", output: `""`, wantErr: true},
		{name: "Empty array", output: `[]`, wantErr: true},
		{name: "Missing output", output: ``, wantErr: true},
		{name: "Object output", output: `{"file":"x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := &Prediction{ID: "pred-7", Output: json.RawMessage(tt.output)}
			url, err := pred.OutputURL()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got URL %q", url)
				}
				return
			}
			if err != nil {
				t.Fatalf("OutputURL failed: %v", err)
			}
			if url != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, url)
			}
		})
	}
}

func TestDownloadOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	data, err := client.DownloadOutput(context.Background(), server.URL+"/out.mp3")
	if err != nil {
		t.Fatalf("DownloadOutput failed: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("Unexpected output data: %q", data)
	}
}

func TestOpenOutput_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.OpenOutput(context.Background(), server.URL+"/missing.mp3")

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", upstream.Status)
	}
}
