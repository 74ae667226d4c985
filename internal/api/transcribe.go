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
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/verbalabs/verba-bridge/internal/logging"
	"github.com/verbalabs/verba-bridge/internal/replicate"
	"github.com/verbalabs/verba-bridge/internal/stt"
)

// maxUploadBytes bounds uploaded recordings. Whisper inputs beyond this are
// rejected before any upstream call.
const maxUploadBytes = 25 << 20

var audioExtension = regexp.MustCompile(`\.(webm|ogg|wav|m4a|mp4)$`)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, language, prompt string) (*stt.Transcription, error)
}

// TranscribeHandler handles POST /api/stt with a multipart form: an audio
// file, an optional language hint, and an optional biasing prompt.
type TranscribeHandler struct {
	transcriber Transcriber
}

func NewTranscribeHandler(transcriber Transcriber) *TranscribeHandler {
	return &TranscribeHandler{transcriber: transcriber}
}

func (h *TranscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, `Missing "audio" file in multipart form-data`)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	fileName := strings.ToLower(header.Filename)

	// Accept any audio/* type or a recognizable audio extension.
	if !strings.HasPrefix(mimeType, "audio/") && !audioExtension.MatchString(fileName) {
		if mimeType == "" {
			mimeType = "unknown"
		}
		writeJSONError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("Unsupported media type: %s", mimeType))
		return
	}

	audio, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to read audio upload")
		return
	}

	language := r.FormValue("language")
	prompt := r.FormValue("prompt")

	result, err := h.transcriber.Transcribe(r.Context(), audio, mimeType, language, prompt)
	if err != nil {
		var upstream *replicate.UpstreamError
		switch {
		case errors.Is(err, replicate.ErrMissingToken):
			writeJSONError(w, http.StatusInternalServerError, "Server misconfigured: missing REPLICATE_API_TOKEN")
		case errors.As(err, &upstream):
			writeJSONError(w, http.StatusBadGateway, upstream.Message)
		default:
			logging.LogError(err, "Transcription failed")
			writeJSONError(w, http.StatusInternalServerError, "Transcription failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
