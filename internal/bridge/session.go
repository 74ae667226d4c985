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

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/verbalabs/verba-bridge/internal/events"
	"github.com/verbalabs/verba-bridge/internal/logging"
	"github.com/verbalabs/verba-bridge/internal/tts"
)

// session serves one websocket connection: a dispatch loop over incoming
// frames, with at most one synthesis in flight at a time.
type session struct {
	id        string
	conn      *safeConn
	streamer  tts.Streamer
	events    EventSink
	artifacts ArtifactSink

	busy atomic.Bool
	wg   sync.WaitGroup
}

func newSession(conn Conn, h *Handler) *session {
	return &session{
		id:        uuid.NewString(),
		conn:      newSafeConn(conn),
		streamer:  h.streamer,
		events:    h.events,
		artifacts: h.artifacts,
	}
}

// run reads frames until the client disconnects. Binary frames from the
// client carry no meaning on this protocol and are ignored. Disconnecting
// cancels the session context so an in-flight synthesis stops polling and
// downloading instead of draining upstream output nobody will receive.
func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	logging.LogBridgeSession(s.id, "connected")
	defer func() {
		s.conn.close()
		cancel()
		s.wg.Wait()
		logging.LogBridgeSession(s.id, "disconnected")
	}()

	for {
		messageType, data, err := s.conn.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleText(ctx, data)
	}
}

// handleText validates one client text frame. Protocol violations answer
// with an error frame and leave the connection open.
func (s *session) handleText(ctx context.Context, data []byte) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.conn.writeError("Invalid JSON from client")
		return
	}

	obj, ok := raw.(map[string]any)
	if !ok || obj["type"] != "synthesize" {
		s.conn.writeError("Unsupported message")
		return
	}

	text, ok := obj["text"].(string)
	if !ok {
		s.conn.writeError("Unsupported message")
		return
	}

	partial, _ := obj["settings"].(map[string]any)

	if s.busy.Swap(true) {
		s.conn.writeError("Synthesis already in progress")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.synthesize(ctx, text, tts.Clamp(partial))
	}()
}

func (s *session) synthesize(ctx context.Context, text string, settings tts.Settings) {
	event := events.NewSynthesisEvent(events.SourceBridge, settings.Model, settings.VoiceID, len(text))

	var audio bytes.Buffer
	audioBytes := 0
	stats, err := s.streamer.Stream(ctx, text, settings,
		func(format string, sampleRate int) error {
			return s.conn.writeJSON(startFrame{Type: "start", Format: format, SampleRate: sampleRate})
		},
		func(chunk []byte) error {
			if err := s.conn.writeBinary(chunk); err != nil {
				return err
			}
			audioBytes += len(chunk)
			if s.artifacts != nil {
				audio.Write(chunk)
			}
			return nil
		},
	)

	if err != nil {
		event.SetError(err)

		// A departed client gets no error frame; the relay just stops.
		if errors.Is(err, errClientDisconnected) || errors.Is(err, context.Canceled) {
			s.record(ctx, event)
			logging.LogBridgeSession(s.id, "synthesis_abandoned", zap.Error(err))
			return
		}

		message := err.Error()
		if tts.IsMissingCredential(err) {
			message = "Missing REPLICATE_API_TOKEN"
		}
		s.conn.writeError(message)

		s.record(ctx, event)
		logging.LogBridgeSession(s.id, "synthesis_failed", zap.Error(err))
		return
	}

	s.conn.writeJSON(endFrame{
		Type:         "end",
		ChunkCount:   stats.ChunkCount,
		FirstAudioMs: stats.FirstAudioMs(),
	})

	event.SetResult(stats.ChunkCount, stats.FirstAudioMs(), audioBytes)
	if s.artifacts != nil && audio.Len() > 0 {
		if path, err := s.artifacts.Save(audio.Bytes()); err == nil {
			event.SetArtifact(path)
		} else {
			logging.LogWarn("Failed to save audio artifact", zap.Error(err))
		}
	}
	s.record(ctx, event)

	logging.LogBridgeSession(s.id, "synthesis_complete",
		zap.Int("chunk_count", stats.ChunkCount),
		zap.Int("text_length", len(text)),
	)
}

func (s *session) record(ctx context.Context, event *events.SynthesisEvent) {
	if s.events != nil {
		s.events.Record(ctx, event)
	}
}
