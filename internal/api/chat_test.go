/*
Copyright (c) 2025 Verba Labs

Licensed under the AGPLv3 License.
This file is part of verba-bridge.
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/verbalabs/verba-bridge/internal/chat"
)

type fakeCompleter struct {
	reply        string
	err          error
	message      string
	systemPrompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	f.message = userMessage
	f.systemPrompt = systemPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestChatHandler(t *testing.T) {
	completer := &fakeCompleter{reply: "Hi there"}
	handler := NewChatHandler(completer)

	w := postJSON(t, handler, "/api/chat", `{"message":"Hello","settings":{"systemPrompt":"Be brief."}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Response != "Hi there" {
		t.Errorf("Unexpected reply: %q", resp.Response)
	}
	if completer.message != "Hello" {
		t.Errorf("Expected message forwarded, got %q", completer.message)
	}
	if completer.systemPrompt != "Be brief." {
		t.Errorf("Expected system prompt from settings, got %q", completer.systemPrompt)
	}
}

func TestChatHandler_MissingMessage(t *testing.T) {
	handler := NewChatHandler(&fakeCompleter{})

	for _, body := range []string{`{}`, `{"message":"  "}`, `{broken`} {
		w := postJSON(t, handler, "/api/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestChatHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "Missing key", err: chat.ErrMissingKey, expected: http.StatusInternalServerError},
		{name: "Upstream failure", err: errors.New("rate limited"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewChatHandler(&fakeCompleter{err: tt.err})
			w := postJSON(t, handler, "/api/chat", `{"message":"Hello"}`)
			if w.Code != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, w.Code)
			}
		})
	}
}
