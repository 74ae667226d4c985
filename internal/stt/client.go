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

// Package stt transcribes recorded audio through a hosted Whisper model.
package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/replicate"
)

// Transcription is the normalized result of a transcription run.
type Transcription struct {
	Text       string `json:"transcript"`
	Language   string `json:"language,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
}

// Client runs Whisper transcriptions via the prediction API.
type Client struct {
	replicate   *replicate.Client
	version     string
	interval    time.Duration
	maxAttempts int
}

func NewClient(rc *replicate.Client, sttCfg config.STTConfig, repCfg config.ReplicateConfig) *Client {
	// The configured slug is "owner/name:version"; the prediction API wants
	// the bare version hash.
	version := sttCfg.ModelVersion
	if idx := strings.LastIndex(version, ":"); idx >= 0 {
		version = version[idx+1:]
	}

	return &Client{
		replicate:   rc,
		version:     version,
		interval:    repCfg.PollInterval,
		maxAttempts: repCfg.PollMaxAttempts,
	}
}

// Transcribe runs one transcription. language defaults to auto-detection;
// prompt, when set, biases the decoder as an initial prompt.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType, language, prompt string) (*Transcription, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio payload must not be empty")
	}

	lang := language
	if lang == "" {
		lang = "auto"
	}

	input := map[string]any{
		"audio":         dataURI(audio, mimeType),
		"language":      lang,
		"translate":     false,
		"transcription": "plain text",
	}
	if prompt != "" {
		input["initial_prompt"] = prompt
	}

	pred, err := c.replicate.CreatePredictionFromVersion(ctx, c.version, input)
	if err != nil {
		return nil, err
	}

	final, err := c.replicate.Wait(ctx, pred, c.interval, c.maxAttempts)
	if err != nil {
		return nil, err
	}

	result, err := normalizeOutput(final.Output)
	if err != nil {
		return nil, err
	}

	// Echo the caller's language hint when one was given; otherwise report
	// what the model detected.
	if language != "" {
		result.Language = language
	}
	return result, nil
}

func dataURI(audio []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(audio)
}

// normalizeOutput folds the shapes Whisper deployments return into one
// transcript: a bare string, an array of segments, or an object carrying
// transcription/text/segments plus optional detected_language and duration.
func normalizeOutput(output json.RawMessage) (*Transcription, error) {
	result := &Transcription{}

	var raw any
	if len(output) > 0 {
		if err := json.Unmarshal(output, &raw); err != nil {
			return nil, &replicate.UpstreamError{Message: "unreadable model output"}
		}
	}

	switch out := raw.(type) {
	case string:
		result.Text = out
	case []any:
		result.Text = joinSegments(out)
	case map[string]any:
		if text, ok := out["transcription"].(string); ok {
			result.Text = text
		} else if text, ok := out["text"].(string); ok {
			result.Text = text
		} else if segments, ok := out["segments"].([]any); ok {
			result.Text = joinSegments(segments)
		}

		if lang, ok := out["detected_language"].(string); ok {
			result.Language = lang
		}

		if ms, ok := out["durationMs"].(float64); ok {
			v := int64(ms)
			result.DurationMs = &v
		} else if seconds, ok := out["duration"].(float64); ok {
			v := int64(math.Round(seconds * 1000))
			result.DurationMs = &v
		}
	}

	result.Text = strings.TrimSpace(result.Text)
	if result.Text == "" {
		return nil, &replicate.UpstreamError{Message: "No transcript produced by the model"}
	}
	return result, nil
}

func joinSegments(segments []any) string {
	var parts []string
	for _, seg := range segments {
		obj, ok := seg.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := obj["text"].(string); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
