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

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/logging"
	"github.com/verbalabs/verba-bridge/internal/server"
)

func main() {
	// Initialize structured logging
	if err := logging.Initialize(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		logging.LogError(err, "Invalid configuration")
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Replicate.APIToken == "" {
		logging.LogWarn("REPLICATE_API_TOKEN is empty; synthesize will error")
	}

	srv, err := server.New(cfg)
	if err != nil {
		logging.LogError(err, "Failed to build server")
		log.Fatalf("Failed to build server: %v", err)
	}

	logging.Sugar.Infow("🚀 verba-bridge starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"db_path", cfg.Storage.DBPath,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Sugar.Infow("🛑 Shutting down", "signal", sig.String())
		if err := srv.Stop(); err != nil {
			logging.LogError(err, "Shutdown failed")
		}
	case err := <-errCh:
		if err != nil {
			logging.LogError(err, "Server failed")
			log.Fatalf("Server failed: %v", err)
		}
	}
}
