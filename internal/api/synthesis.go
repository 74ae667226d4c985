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
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verbalabs/verba-bridge/internal/events"
	"github.com/verbalabs/verba-bridge/internal/logging"
	"github.com/verbalabs/verba-bridge/internal/replicate"
	"github.com/verbalabs/verba-bridge/internal/tts"
)

// Synthesizer produces a complete audio payload for a text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, settings tts.Settings) ([]byte, error)
}

// AudioStore persists a named audio file for later serving.
type AudioStore interface {
	SaveNamed(name string, data []byte) (string, error)
}

// EventSink receives the audit record of each finished synthesis.
type EventSink interface {
	Record(ctx context.Context, event *events.SynthesisEvent)
}

// SynthesisHandler handles POST /api/tts: sanitize settings, synthesize to
// completion, persist the audio, and answer with the URL it will be served
// from.
type SynthesisHandler struct {
	synth  Synthesizer
	store  AudioStore
	events EventSink
}

func NewSynthesisHandler(synth Synthesizer, store AudioStore, sink EventSink) *SynthesisHandler {
	return &SynthesisHandler{synth: synth, store: store, events: sink}
}

type synthesizeRequest struct {
	Text     string      `json:"text"`
	Settings tts.Partial `json:"settings"`
}

type synthesizeResponse struct {
	URL string `json:"url"`
}

func (h *SynthesisHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing text")
		return
	}

	settings := tts.Clamp(req.Settings)
	event := events.NewSynthesisEvent(events.SourceAPI, settings.Model, settings.VoiceID, len(req.Text))

	audio, err := h.synth.Synthesize(r.Context(), req.Text, settings)
	if err != nil {
		event.SetError(err)
		h.record(r.Context(), event)
		h.writeSynthesisError(w, err)
		return
	}

	name := uuid.NewString() + ".mp3"
	if _, err := h.store.SaveNamed(name, audio); err != nil {
		logging.LogError(err, "Failed to persist synthesized audio")
		event.SetError(err)
		h.record(r.Context(), event)
		writeJSONError(w, http.StatusInternalServerError, "Failed to store audio")
		return
	}

	event.SetResult(1, nil, len(audio))
	event.SetArtifact(name)
	h.record(r.Context(), event)

	logging.LogSynthesisOperation("api_synthesis",
		zap.String("artifact", name),
		zap.Int("audio_bytes", len(audio)),
	)

	writeJSON(w, http.StatusOK, synthesizeResponse{URL: "/audio/" + name})
}

func (h *SynthesisHandler) writeSynthesisError(w http.ResponseWriter, err error) {
	var upstream *replicate.UpstreamError

	switch {
	case errors.Is(err, tts.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, replicate.ErrMissingToken):
		writeJSONError(w, http.StatusInternalServerError, "Server misconfigured: missing REPLICATE_API_TOKEN")
	case errors.As(err, &upstream):
		writeJSONError(w, http.StatusBadGateway, upstream.Message)
	default:
		logging.LogError(err, "Synthesis failed")
		writeJSONError(w, http.StatusInternalServerError, "Synthesis failed")
	}
}

func (h *SynthesisHandler) record(ctx context.Context, event *events.SynthesisEvent) {
	if h.events != nil {
		h.events.Record(ctx, event)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
