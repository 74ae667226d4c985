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

// Package bridge relays synthesized audio over websockets. A client sends a
// synthesize request as a JSON text frame; the bridge answers with a start
// control frame, the audio as ordered binary frames, and an end control
// frame carrying stream statistics. Failures surface as error frames on the
// same connection, which stays open for further requests.
package bridge

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/verbalabs/verba-bridge/internal/events"
	"github.com/verbalabs/verba-bridge/internal/logging"
	"github.com/verbalabs/verba-bridge/internal/tts"
)

// EventSink receives the audit record of each finished synthesis. Recording
// is best-effort; sink failures never affect the client-facing stream.
type EventSink interface {
	Record(ctx context.Context, event *events.SynthesisEvent)
}

// ArtifactSink persists a finished audio payload and returns where it was
// written. Used for debug dumps of relayed streams.
type ArtifactSink interface {
	Save(data []byte) (string, error)
}

// Handler upgrades HTTP requests to websocket bridge sessions.
type Handler struct {
	streamer  tts.Streamer
	events    EventSink
	artifacts ArtifactSink
	upgrader  websocket.Upgrader
}

// NewHandler creates a bridge handler. events and artifacts may be nil to
// disable persistence and debug dumps.
func NewHandler(streamer tts.Streamer, events EventSink, artifacts ArtifactSink) *Handler {
	return &Handler{
		streamer:  streamer,
		events:    events,
		artifacts: artifacts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The bridge serves local clients of varying origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.LogWarn("Websocket upgrade failed", zap.Error(err))
		return
	}

	h.Serve(r.Context(), conn)
}

// Serve runs the bridge protocol over an established connection until the
// client disconnects. Exposed separately from ServeHTTP for tests that drive
// the session with a fake connection.
func (h *Handler) Serve(ctx context.Context, conn Conn) {
	newSession(conn, h).run(ctx)
}
