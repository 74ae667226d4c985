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

// Package server wires the bridge, the HTTP API and their backing services
// into one process.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/verbalabs/verba-bridge/internal/api"
	"github.com/verbalabs/verba-bridge/internal/artifacts"
	"github.com/verbalabs/verba-bridge/internal/bridge"
	"github.com/verbalabs/verba-bridge/internal/chat"
	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/events"
	"github.com/verbalabs/verba-bridge/internal/logging"
	"github.com/verbalabs/verba-bridge/internal/messaging"
	"github.com/verbalabs/verba-bridge/internal/replicate"
	"github.com/verbalabs/verba-bridge/internal/storage"
	"github.com/verbalabs/verba-bridge/internal/stt"
	"github.com/verbalabs/verba-bridge/internal/tts"
)

// Server hosts the websocket bridge and the HTTP API.
type Server struct {
	cfg    *config.Config
	mux    *http.ServeMux
	server *http.Server

	db        *storage.Database
	publisher *messaging.EventPublisher

	ctx    context.Context
	cancel context.CancelFunc
}

// eventRecorder fans a finished synthesis out to the database and, when
// configured, the NATS mirror. Both sides are best-effort.
type eventRecorder struct {
	store     *storage.SynthesisEventsStore
	publisher *messaging.EventPublisher
}

func (r *eventRecorder) Record(ctx context.Context, event *events.SynthesisEvent) {
	if err := r.store.Insert(event); err != nil {
		logging.LogError(err, "Failed to store synthesis event")
	}
	if err := r.publisher.Publish(event); err != nil {
		logging.LogError(err, "Failed to publish synthesis event")
	}
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config) (*Server, error) {
	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Storage.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	publisher := messaging.NewEventPublisher(cfg.NATS)
	if err := publisher.Connect(); err != nil {
		// The bridge keeps working without the mirror.
		logging.LogError(err, "NATS unavailable, synthesis events will not be mirrored")
	}

	eventStore := storage.NewSynthesisEventsStore(db)
	recorder := &eventRecorder{store: eventStore, publisher: publisher}

	replicateClient := replicate.NewClient(cfg.Replicate)
	streamer := tts.NewReplicateStreamer(replicateClient, *cfg)
	polling := tts.NewPollingClient(replicateClient, cfg.Replicate)
	chatClient := chat.NewClient(cfg.Chat)
	sttClient := stt.NewClient(replicateClient, cfg.STT, cfg.Replicate)

	var debugStore bridge.ArtifactSink
	if cfg.TTS.Debug {
		debugStore = artifacts.NewStore(cfg.Artifacts.DebugDir, cfg.TTS.Format)
	}
	publicStore := artifacts.NewStore(cfg.Artifacts.PublicDir, cfg.TTS.Format)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		db:        db,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.routes(routesDeps{
		bridge:     bridge.NewHandler(streamer, recorder, debugStore),
		synthesis:  api.NewSynthesisHandler(polling, publicStore, recorder),
		chat:       api.NewChatHandler(chatClient),
		transcribe: api.NewTranscribeHandler(sttClient),
		events:     api.NewSynthesisEventsHandler(eventStore),
		audioDir:   publicStore.Dir(),
	})

	return s, nil
}

type routesDeps struct {
	bridge     *bridge.Handler
	synthesis  *api.SynthesisHandler
	chat       *api.ChatHandler
	transcribe *api.TranscribeHandler
	events     *api.SynthesisEventsHandler
	audioDir   string
}

// routes sets up HTTP routing
func (s *Server) routes(deps routesDeps) {
	s.mux.HandleFunc("/health", s.handleHealth)

	s.mux.Handle("/ws", deps.bridge)

	s.mux.Handle("/api/tts", deps.synthesis)
	s.mux.Handle("/api/chat", deps.chat)
	s.mux.Handle("/api/stt", deps.transcribe)

	s.mux.HandleFunc("/api/synthesis-events", deps.events.HandleSynthesisEvents)
	s.mux.HandleFunc("/api/synthesis-events/", deps.events.HandleSynthesisEventByID)

	// Synthesized files from the HTTP route are served back from here.
	s.mux.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(deps.audioDir))))
}

// handleHealth provides process health information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"upstream":  "replicate",
		"nats":      s.publisher.IsConnected(),
	}

	if err := s.db.Ping(); err != nil {
		health["status"] = "degraded"
		health["database"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		logging.LogError(err, "Failed to write health response")
	}
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	if logging.Sugar != nil {
		logging.Sugar.Infow("🚀 Verba bridge starting",
			"addr", s.server.Addr,
			"nats", s.cfg.NATS.URL != "",
			"tts_debug", s.cfg.TTS.Debug)
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the server and its backing services.
func (s *Server) Stop() error {
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.publisher.Close()
	return s.db.Close()
}

// Handler exposes the route table, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}
