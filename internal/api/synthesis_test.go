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

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/verbalabs/verba-bridge/internal/events"
	"github.com/verbalabs/verba-bridge/internal/replicate"
	"github.com/verbalabs/verba-bridge/internal/tts"
)

type fakeSynthesizer struct {
	audio    []byte
	err      error
	text     string
	settings tts.Settings
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string, settings tts.Settings) ([]byte, error) {
	f.text = text
	f.settings = settings
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

type fakeAudioStore struct {
	name string
	data []byte
	err  error
}

func (f *fakeAudioStore) SaveNamed(name string, data []byte) (string, error) {
	f.name = name
	f.data = data
	if f.err != nil {
		return "", f.err
	}
	return name, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []*events.SynthesisEvent
}

func (s *recordingSink) Record(ctx context.Context, event *events.SynthesisEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []*events.SynthesisEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*events.SynthesisEvent(nil), s.events...)
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestSynthesisHandler(t *testing.T) {
	synth := &fakeSynthesizer{audio: []byte("mp3-data")}
	store := &fakeAudioStore{}
	sink := &recordingSink{}
	handler := NewSynthesisHandler(synth, store, sink)

	w := postJSON(t, handler, "/api/tts", `{"text":"Hello","settings":{"speed":9.0,"voiceId":"Calm_Woman"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.HasPrefix(resp.URL, "/audio/") || !strings.HasSuffix(resp.URL, ".mp3") {
		t.Errorf("Unexpected audio URL: %s", resp.URL)
	}

	if synth.settings.Speed != 2.0 {
		t.Errorf("Expected clamped speed 2.0, got %f", synth.settings.Speed)
	}
	if synth.settings.VoiceID != "Calm_Woman" {
		t.Errorf("Expected voice passthrough, got %s", synth.settings.VoiceID)
	}
	if string(store.data) != "mp3-data" {
		t.Errorf("Stored audio differs: %q", store.data)
	}
	if strings.TrimPrefix(resp.URL, "/audio/") != store.name {
		t.Errorf("Response URL %s does not match stored name %s", resp.URL, store.name)
	}

	recorded := sink.all()
	if len(recorded) != 1 || !recorded[0].Success || recorded[0].Source != events.SourceAPI {
		t.Errorf("Unexpected recorded events: %+v", recorded)
	}
}

func TestSynthesisHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "Invalid JSON", body: `{broken`},
		{name: "Missing text", body: `{"settings":{}}`},
		{name: "Whitespace text", body: `{"text":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSynthesisHandler(&fakeSynthesizer{}, &fakeAudioStore{}, nil)
			w := postJSON(t, handler, "/api/tts", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}

func TestSynthesisHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "Invalid input", err: tts.ErrInvalidInput, expected: http.StatusBadRequest},
		{name: "Missing credential", err: replicate.ErrMissingToken, expected: http.StatusInternalServerError},
		{name: "Upstream failure", err: &replicate.UpstreamError{Status: 422, Message: "bad voice"}, expected: http.StatusBadGateway},
		{name: "Unknown failure", err: context.DeadlineExceeded, expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			handler := NewSynthesisHandler(&fakeSynthesizer{err: tt.err}, &fakeAudioStore{}, sink)

			w := postJSON(t, handler, "/api/tts", `{"text":"Hello"}`)
			if w.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}

			recorded := sink.all()
			if len(recorded) != 1 || recorded[0].Success {
				t.Errorf("Expected one failed event, got %+v", recorded)
			}
		})
	}
}

func TestSynthesisHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSynthesisHandler(&fakeSynthesizer{}, &fakeAudioStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/tts", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}
