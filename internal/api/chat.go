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

	"github.com/verbalabs/verba-bridge/internal/chat"
	"github.com/verbalabs/verba-bridge/internal/logging"
	"github.com/verbalabs/verba-bridge/internal/tts"
)

// Completer produces an assistant reply for a user message.
type Completer interface {
	Complete(ctx context.Context, userMessage, systemPrompt string) (string, error)
}

// ChatHandler handles POST /api/chat. The request carries the same settings
// object the synthesis surfaces use; only its system prompt matters here.
type ChatHandler struct {
	completer Completer
}

func NewChatHandler(completer Completer) *ChatHandler {
	return &ChatHandler{completer: completer}
}

type chatRequest struct {
	Message  string      `json:"message"`
	Settings tts.Partial `json:"settings"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing message")
		return
	}

	systemPrompt := tts.Clamp(req.Settings).SystemPrompt

	reply, err := h.completer.Complete(r.Context(), req.Message, systemPrompt)
	if err != nil {
		if errors.Is(err, chat.ErrMissingKey) {
			writeJSONError(w, http.StatusInternalServerError, "Server misconfigured: missing OPENAI_API_KEY")
			return
		}
		logging.LogError(err, "Chat completion failed")
		writeJSONError(w, http.StatusInternalServerError, "Chat failed")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}
