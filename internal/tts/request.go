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

package tts

import (
	"fmt"
	"strings"
)

// BuildProviderInput maps sanitized settings and input text onto the
// provider's parameter names. The language boost is omitted when unset, and
// the system prompt is never forwarded; it belongs to the chat path only.
// Callers must hold a non-empty text; empty or whitespace-only text fails
// with ErrInvalidInput.
func BuildProviderInput(text string, settings Settings) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text must not be empty: %w", ErrInvalidInput)
	}

	input := map[string]any{
		"text":                  text,
		"voice_id":              settings.VoiceID,
		"speed":                 settings.Speed,
		"volume":                settings.Volume,
		"pitch":                 settings.Pitch,
		"emotion":               settings.Emotion,
		"english_normalization": settings.EnglishNormalization,
		"sample_rate":           settings.SampleRate,
		"bitrate":               settings.Bitrate,
		"channel":               settings.Channel,
	}

	if settings.LanguageBoost != nil {
		input["language_boost"] = *settings.LanguageBoost
	}

	return input, nil
}
