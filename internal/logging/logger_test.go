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

package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeWithConfig(t *testing.T) {
	tests := []struct {
		name   string
		config LogConfig
	}{
		{name: "Console format info level", config: LogConfig{Level: "info", Format: "console"}},
		{name: "JSON format debug level", config: LogConfig{Level: "debug", Format: "json"}},
		{name: "Invalid format defaults to console", config: LogConfig{Level: "info", Format: "invalid"}},
		{name: "Invalid level defaults to info", config: LogConfig{Level: "invalid", Format: "console"}},
		{name: "Case insensitive", config: LogConfig{Level: "INFO", Format: "JSON"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := InitializeWithConfig(tt.config); err != nil {
				t.Errorf("InitializeWithConfig() unexpected error: %v", err)
				return
			}

			if Logger == nil {
				t.Error("Logger should not be nil after initialization")
			}
			if Sugar == nil {
				t.Error("Sugar should not be nil after initialization")
			}

			Close()
		})
	}
}

func TestLoggingHelpers(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	Logger = zap.New(core)
	Sugar = Logger.Sugar()

	defer func() {
		Close()
		Logger = nil
		Sugar = nil
	}()

	t.Run("LogSynthesisOperation", func(t *testing.T) {
		LogSynthesisOperation("synthesis_start", zap.String("voice_id", "English_Trustworth_Man"))

		logs := recorded.All()
		if len(logs) == 0 {
			t.Fatal("Expected log entry but got none")
		}

		log := logs[len(logs)-1]
		if log.Message != "TTS operation" {
			t.Errorf("Expected message 'TTS operation', got %q", log.Message)
		}

		fields := fieldMap(log.Context)
		if fields["component"] != "tts" {
			t.Errorf("Expected component 'tts', got %v", fields["component"])
		}
		if fields["operation"] != "synthesis_start" {
			t.Errorf("Expected operation 'synthesis_start', got %v", fields["operation"])
		}
		if fields["voice_id"] != "English_Trustworth_Man" {
			t.Errorf("Expected voice_id field, got %v", fields["voice_id"])
		}
	})

	t.Run("LogBridgeSession", func(t *testing.T) {
		LogBridgeSession("sess-123", "streaming", zap.Int("chunk_count", 4))

		logs := recorded.All()
		log := logs[len(logs)-1]
		if log.Message != "Bridge session" {
			t.Errorf("Expected message 'Bridge session', got %q", log.Message)
		}

		fields := fieldMap(log.Context)
		if fields["component"] != "bridge" {
			t.Errorf("Expected component 'bridge', got %v", fields["component"])
		}
		if fields["session_id"] != "sess-123" {
			t.Errorf("Expected session_id 'sess-123', got %v", fields["session_id"])
		}
		if fields["stage"] != "streaming" {
			t.Errorf("Expected stage 'streaming', got %v", fields["stage"])
		}
	})

	t.Run("LogUpstreamCall", func(t *testing.T) {
		LogUpstreamCall("replicate", "create_prediction")

		logs := recorded.All()
		log := logs[len(logs)-1]
		if log.Message != "Upstream call" {
			t.Errorf("Expected message 'Upstream call', got %q", log.Message)
		}

		fields := fieldMap(log.Context)
		if fields["provider"] != "replicate" {
			t.Errorf("Expected provider 'replicate', got %v", fields["provider"])
		}
	})

	t.Run("LogError", func(t *testing.T) {
		LogError(errors.New("boom"), "Something went wrong")

		logs := recorded.All()
		log := logs[len(logs)-1]
		if log.Level != zapcore.ErrorLevel {
			t.Errorf("Expected error level, got %v", log.Level)
		}
		if log.Message != "Something went wrong" {
			t.Errorf("Expected message 'Something went wrong', got %q", log.Message)
		}
	})

	t.Run("LogWarn", func(t *testing.T) {
		LogWarn("Warning message")

		logs := recorded.All()
		log := logs[len(logs)-1]
		if log.Level != zapcore.WarnLevel {
			t.Errorf("Expected warn level, got %v", log.Level)
		}
	})
}

func TestLoggingHelpers_NilLogger(t *testing.T) {
	originalLogger := Logger
	originalSugar := Sugar
	defer func() {
		Logger = originalLogger
		Sugar = originalSugar
	}()

	Logger = nil
	Sugar = nil

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Function panicked with nil logger: %v", r)
		}
	}()

	LogSynthesisOperation("operation")
	LogBridgeSession("sess", "stage")
	LogUpstreamCall("provider", "op")
	LogError(errors.New("test"), "message")
	LogWarn("warning")
	Sync()
}

func fieldMap(fields []zapcore.Field) map[string]interface{} {
	out := make(map[string]interface{})
	for _, field := range fields {
		switch field.Type {
		case zapcore.StringType:
			out[field.Key] = field.String
		case zapcore.Int64Type:
			out[field.Key] = field.Integer
		}
	}
	return out
}
