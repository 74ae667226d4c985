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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Verba bridge
type Config struct {
	Server    ServerConfig
	Replicate ReplicateConfig
	TTS       TTSConfig
	Chat      ChatConfig
	STT       STTConfig
	Artifacts ArtifactsConfig
	Storage   StorageConfig
	NATS      NATSConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ReplicateConfig holds the upstream provider configuration.
// APIToken may be empty at startup; its absence is surfaced per request,
// not as a boot failure.
type ReplicateConfig struct {
	APIToken        string
	BaseURL         string
	PollInterval    time.Duration // fixed interval between prediction status polls
	PollMaxAttempts int           // upper bound on the poll loop
}

// TTSConfig holds defaults for text-to-speech synthesis
type TTSConfig struct {
	Model  string // default provider model identifier
	Voice  string // default voice to use
	Format string // audio container reported in the start frame
	Debug  bool   // dump synthesized audio to the artifact dir
}

// ChatConfig holds chat completion proxy configuration
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// STTConfig holds speech-to-text collaborator configuration
type STTConfig struct {
	ModelVersion string // versioned whisper slug on the provider
}

// ArtifactsConfig holds locations for persisted audio
type ArtifactsConfig struct {
	DebugDir  string // bridge debug dumps
	PublicDir string // assets served under /audio/
}

// StorageConfig holds the synthesis event store configuration
type StorageConfig struct {
	DBPath string
}

// NATSConfig holds optional event-mirror configuration.
// An empty URL disables NATS entirely.
type NATSConfig struct {
	URL           string
	Subject       string
	ReconnectWait time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with defaults.
// A .env.local file in the working directory is merged in first when
// present; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")

	config := &Config{
		Server: ServerConfig{
			Host:        getEnvString("VERBA_HOST", "0.0.0.0"),
			Port:        getEnvInt("VERBA_PORT", 8787),
			ReadTimeout: getEnvDuration("VERBA_READ_TIMEOUT", 30*time.Second),
			// Synthesis responses can take as long as the poll budget allows,
			// so the write timeout must exceed it.
			WriteTimeout: getEnvDuration("VERBA_WRITE_TIMEOUT", 180*time.Second),
		},
		Replicate: ReplicateConfig{
			APIToken:        getEnvString("REPLICATE_API_TOKEN", ""),
			BaseURL:         getEnvString("REPLICATE_BASE_URL", "https://api.replicate.com"),
			PollInterval:    getEnvDuration("TTS_POLL_INTERVAL", time.Second),
			PollMaxAttempts: getEnvInt("TTS_POLL_MAX_ATTEMPTS", 120),
		},
		TTS: TTSConfig{
			Model:  getEnvString("TTS_MODEL", "minimax/speech-02-turbo"),
			Voice:  getEnvString("TTS_VOICE", "English_Trustworth_Man"),
			Format: getEnvString("TTS_FORMAT", "mp3"),
			Debug:  getEnvBool("TTS_DEBUG", false),
		},
		Chat: ChatConfig{
			APIKey:  getEnvString("OPENAI_API_KEY", ""),
			BaseURL: getEnvString("CHAT_BASE_URL", "https://api.openai.com"),
			Model:   getEnvString("CHAT_MODEL", "gpt-3.5-turbo"),
		},
		STT: STTConfig{
			ModelVersion: getEnvString("STT_MODEL_VERSION",
				"openai/whisper:8099696689d249cf8b122d833c36ac3f75505c666a395ca40ef26f68e7d3d16e"),
		},
		Artifacts: ArtifactsConfig{
			DebugDir:  getEnvString("AUDIO_ARTIFACT_DIR", "./data/audio-debug"),
			PublicDir: getEnvString("PUBLIC_AUDIO_DIR", "./public/audio"),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", "./data/verba-bridge.db"),
		},
		NATS: NATSConfig{
			URL:           getEnvString("NATS_URL", ""),
			Subject:       getEnvString("NATS_SUBJECT", "verba.synthesis.events"),
			ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "console"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Replicate.BaseURL == "" {
		return fmt.Errorf("provider base URL must be provided")
	}

	if c.Replicate.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %v", c.Replicate.PollInterval)
	}

	if c.Replicate.PollMaxAttempts <= 0 {
		return fmt.Errorf("poll max attempts must be positive: %d", c.Replicate.PollMaxAttempts)
	}

	if c.TTS.Model == "" {
		return fmt.Errorf("TTS model must be provided")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
