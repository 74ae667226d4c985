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

package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sources a synthesis request can arrive from.
const (
	SourceBridge = "bridge"
	SourceAPI    = "api"
	SourceCLI    = "cli"
)

// SynthesisEvent is the audit record of one synthesis run, from request
// arrival to final audio (or failure). FirstAudioMs is nil when no audio was
// ever produced.
type SynthesisEvent struct {
	UUID      string    `json:"uuid" db:"uuid"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Source    string    `json:"source" db:"source"`

	Model      string `json:"model" db:"model"`
	VoiceID    string `json:"voice_id" db:"voice_id"`
	TextLength int    `json:"text_length" db:"text_length"`

	ChunkCount   int    `json:"chunk_count" db:"chunk_count"`
	FirstAudioMs *int64 `json:"first_audio_ms,omitempty" db:"first_audio_ms"`
	AudioBytes   int    `json:"audio_bytes" db:"audio_bytes"`

	ProcessingTime int64  `json:"processing_time_ms" db:"processing_time_ms"`
	Success        bool   `json:"success" db:"success"`
	ErrorMessage   string `json:"error_message,omitempty" db:"error_message"`
	ArtifactPath   string `json:"artifact_path,omitempty" db:"artifact_path"`
}

// NewSynthesisEvent creates an event for an incoming request. Result fields
// are filled in by SetResult or SetError when the run finishes.
func NewSynthesisEvent(source, model, voiceID string, textLength int) *SynthesisEvent {
	return &SynthesisEvent{
		UUID:       uuid.NewString(),
		Timestamp:  time.Now(),
		Source:     source,
		Model:      model,
		VoiceID:    voiceID,
		TextLength: textLength,
		Success:    true,
	}
}

// SetResult records a successful run.
func (se *SynthesisEvent) SetResult(chunkCount int, firstAudioMs *int64, audioBytes int) {
	se.ChunkCount = chunkCount
	se.FirstAudioMs = firstAudioMs
	se.AudioBytes = audioBytes
	se.ProcessingTime = time.Since(se.Timestamp).Milliseconds()
}

// SetError marks the run as failed.
func (se *SynthesisEvent) SetError(err error) {
	se.Success = false
	se.ErrorMessage = err.Error()
	se.ProcessingTime = time.Since(se.Timestamp).Milliseconds()
}

// SetArtifact records where the audio payload was persisted, if anywhere.
func (se *SynthesisEvent) SetArtifact(path string) {
	se.ArtifactPath = path
}

// IsValid performs basic validation before persistence.
func (se *SynthesisEvent) IsValid() error {
	if se.UUID == "" {
		return fmt.Errorf("UUID is required")
	}

	if se.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	switch se.Source {
	case SourceBridge, SourceAPI, SourceCLI:
	default:
		return fmt.Errorf("unknown source: %q", se.Source)
	}

	if se.TextLength < 0 {
		return fmt.Errorf("text length must not be negative")
	}

	return nil
}

// String returns a human-readable representation of the event
func (se *SynthesisEvent) String() string {
	return fmt.Sprintf("SynthesisEvent{UUID: %s, Source: %s, Model: %s, Voice: %s, Chunks: %d, Success: %t}",
		se.UUID, se.Source, se.Model, se.VoiceID, se.ChunkCount, se.Success)
}
