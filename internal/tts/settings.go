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
	"encoding/json"
	"math"
	"strings"
)

// Provider model identifiers accepted upstream
const (
	ModelSpeechTurbo = "minimax/speech-02-turbo"
	ModelSpeechHD    = "minimax/speech-02-hd"
)

// Defaults applied by Clamp when a field is missing or invalid
const (
	DefaultVoice         = "English_Trustworth_Man"
	DefaultLanguageBoost = "English"
	DefaultSampleRate    = 32000
	DefaultBitrate       = 128000
)

var validEmotions = map[string]bool{
	"auto": true, "neutral": true, "happy": true, "sad": true,
	"angry": true, "fearful": true, "disgusted": true, "surprised": true,
}

// Bitrates the provider accepts, ascending. Order matters: nearest-value
// snapping breaks ties toward the earlier candidate.
var validBitrates = []int{64000, 96000, 128000, 192000, 256000}

var validSampleRates = map[int]bool{
	16000: true, 22050: true, 32000: true, 44100: true, 48000: true,
}

// Settings is the sanitized, canonical synthesis configuration. Every value
// is bounded and safe to forward upstream. LanguageBoost is nil when the
// caller explicitly unset it (empty string input); SystemPrompt governs only
// the chat completion path and never reaches the TTS provider.
type Settings struct {
	Model                string  `json:"model"`
	VoiceID              string  `json:"voiceId"`
	Speed                float64 `json:"speed"`
	Volume               float64 `json:"volume"`
	Pitch                int     `json:"pitch"`
	Emotion              string  `json:"emotion"`
	EnglishNormalization bool    `json:"englishNormalization"`
	SampleRate           int     `json:"sampleRate"`
	Bitrate              int     `json:"bitrate"`
	Channel              string  `json:"channel"`
	LanguageBoost        *string `json:"languageBoost,omitempty"`
	SystemPrompt         string  `json:"systemPrompt"`
}

// Partial is an untrusted settings object as decoded from client JSON.
// Unknown keys are ignored; wrong-typed values fall back to defaults.
type Partial map[string]any

// Clamp sanitizes an arbitrary partial settings object into a fully
// populated Settings. It is total: any input, including nil, maps to a
// valid record. Fields are sanitized independently; only bitrate carries a
// normalization step (kbps rescale, then nearest-value snap).
func Clamp(p Partial) Settings {
	s := Settings{
		Model:      clampModel(p["model"]),
		VoiceID:    clampVoice(p["voiceId"]),
		Speed:      clampNumber(p["speed"], 0.5, 2.0, 1.0),
		Volume:     clampNumber(p["volume"], 0.0, 2.0, 1.0),
		Pitch:      clampPitch(p["pitch"]),
		Emotion:    clampEmotion(p["emotion"]),
		SampleRate: clampSampleRate(p["sampleRate"]),
		Bitrate:    clampBitrate(p["bitrate"]),
		Channel:    clampChannel(p["channel"]),
	}

	if b, ok := asBool(p["englishNormalization"]); ok {
		s.EnglishNormalization = b
	}

	if sp, ok := asString(p["systemPrompt"]); ok {
		s.SystemPrompt = sp
	}

	// Absent means the default boost; a present empty (or non-string) value
	// explicitly disables it. Absent and empty are not equivalent.
	raw, present := p["languageBoost"]
	if !present {
		boost := DefaultLanguageBoost
		s.LanguageBoost = &boost
	} else if str, ok := asString(raw); ok {
		if trimmed := strings.TrimSpace(str); trimmed != "" {
			s.LanguageBoost = &trimmed
		}
	} else {
		boost := DefaultLanguageBoost
		s.LanguageBoost = &boost
	}

	return s
}

// Partial returns the canonical partial form of sanitized settings, with an
// unset language boost represented as an explicit empty string. It satisfies
// Clamp(s.Partial()) == s for every sanitized s.
func (s Settings) Partial() Partial {
	boost := ""
	if s.LanguageBoost != nil {
		boost = *s.LanguageBoost
	}

	return Partial{
		"model":                s.Model,
		"voiceId":              s.VoiceID,
		"speed":                s.Speed,
		"volume":               s.Volume,
		"pitch":                s.Pitch,
		"emotion":              s.Emotion,
		"englishNormalization": s.EnglishNormalization,
		"sampleRate":           s.SampleRate,
		"bitrate":              s.Bitrate,
		"channel":              s.Channel,
		"languageBoost":        boost,
		"systemPrompt":         s.SystemPrompt,
	}
}

func clampModel(v any) string {
	if str, ok := asString(v); ok {
		if str == ModelSpeechTurbo || str == ModelSpeechHD {
			return str
		}
	}
	return ModelSpeechTurbo
}

func clampVoice(v any) string {
	if str, ok := asString(v); ok {
		if trimmed := strings.TrimSpace(str); trimmed != "" {
			return trimmed
		}
	}
	return DefaultVoice
}

func clampNumber(v any, min, max, fallback float64) float64 {
	n, ok := asNumber(v)
	if !ok {
		return fallback
	}
	return math.Min(max, math.Max(min, n))
}

func clampPitch(v any) int {
	n, ok := asNumber(v)
	if !ok {
		return 0
	}
	rounded := int(math.Round(n))
	if rounded < -12 {
		return -12
	}
	if rounded > 12 {
		return 12
	}
	return rounded
}

func clampEmotion(v any) string {
	if str, ok := asString(v); ok && validEmotions[str] {
		return str
	}
	return "auto"
}

func clampSampleRate(v any) int {
	if n, ok := asNumber(v); ok {
		if rate := int(n); float64(rate) == n && validSampleRates[rate] {
			return rate
		}
	}
	return DefaultSampleRate
}

func clampBitrate(v any) int {
	n, ok := asNumber(v)
	if !ok {
		return DefaultBitrate
	}

	// Inputs shaped like kbps are rescaled before snapping.
	switch n {
	case 64, 96, 128, 192, 256:
		n *= 1000
	}

	best := validBitrates[0]
	bestDiff := math.Abs(n - float64(best))
	for _, candidate := range validBitrates[1:] {
		if diff := math.Abs(n - float64(candidate)); diff < bestDiff {
			best = candidate
			bestDiff = diff
		}
	}
	return best
}

func clampChannel(v any) string {
	if str, ok := asString(v); ok {
		if str == "mono" || str == "stereo" {
			return str
		}
	}
	return "mono"
}

// asNumber accepts the numeric shapes a decoded JSON value (or
// programmatically built Partial) can take. NaN is treated as absent.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	str, ok := v.(string)
	return str, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
