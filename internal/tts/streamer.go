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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/logging"
	"github.com/verbalabs/verba-bridge/internal/replicate"
)

// streamChunkSize bounds each audio frame relayed to the consumer.
const streamChunkSize = 32 * 1024

// StreamStats summarizes a finished stream. FirstAudio is measured from the
// moment the upstream session opened to the arrival of the first chunk, and
// is only meaningful when GotAudio is true.
type StreamStats struct {
	ChunkCount int
	FirstAudio time.Duration
	GotAudio   bool
}

// FirstAudioMs returns the first-chunk latency in milliseconds, or nil when
// no audio arrived. The wire protocol reports it as a nullable number.
func (s *StreamStats) FirstAudioMs() *int64 {
	if !s.GotAudio {
		return nil
	}
	ms := s.FirstAudio.Milliseconds()
	return &ms
}

// Streamer produces synthesized audio for a text as an ordered sequence of
// chunks. onStart runs exactly once before any chunk, after the upstream
// session is known to be viable; onChunk runs once per chunk, in order. A
// callback error aborts the stream and is returned unchanged.
type Streamer interface {
	Stream(ctx context.Context, text string, settings Settings, onStart func(format string, sampleRate int) error, onChunk func(chunk []byte) error) (*StreamStats, error)
}

// ReplicateStreamer synthesizes through the Replicate prediction API: create
// a prediction, poll it to completion, then relay the output file in bounded
// chunks.
type ReplicateStreamer struct {
	client      *replicate.Client
	format      string
	interval    time.Duration
	maxAttempts int
}

func NewReplicateStreamer(client *replicate.Client, cfg config.Config) *ReplicateStreamer {
	return &ReplicateStreamer{
		client:      client,
		format:      cfg.TTS.Format,
		interval:    cfg.Replicate.PollInterval,
		maxAttempts: cfg.Replicate.PollMaxAttempts,
	}
}

func (s *ReplicateStreamer) Stream(ctx context.Context, text string, settings Settings, onStart func(format string, sampleRate int) error, onChunk func(chunk []byte) error) (*StreamStats, error) {
	input, err := BuildProviderInput(text, settings)
	if err != nil {
		return nil, err
	}

	// Credential preflight happens before onStart so a misconfigured server
	// never announces a stream it cannot deliver.
	if !s.client.HasToken() {
		return nil, replicate.ErrMissingToken
	}

	if err := onStart(s.format, settings.SampleRate); err != nil {
		return nil, err
	}

	sessionStart := time.Now()
	pred, err := s.client.CreatePrediction(ctx, settings.Model, input)
	if err != nil {
		return nil, err
	}

	logging.LogSynthesisOperation("prediction_created",
		zap.String("prediction_id", pred.ID),
		zap.String("model", settings.Model),
		zap.Int("text_length", len(text)),
	)

	final, err := s.client.Wait(ctx, pred, s.interval, s.maxAttempts)
	if err != nil {
		return nil, err
	}

	url, err := final.OutputURL()
	if err != nil {
		return nil, &replicate.UpstreamError{Message: err.Error()}
	}

	body, err := s.client.OpenOutput(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	stats := &StreamStats{}
	buf := make([]byte, streamChunkSize)
	for {
		// ReadFull keeps chunks at full size except for the tail, regardless
		// of how the transport fragments the body.
		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			if !stats.GotAudio {
				stats.GotAudio = true
				stats.FirstAudio = time.Since(sessionStart)
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := onChunk(chunk); err != nil {
				return stats, err
			}
			stats.ChunkCount++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return stats, fmt.Errorf("audio stream interrupted: %w", readErr)
		}
	}

	// A succeeded prediction with an empty output file is still a completed
	// stream; the consumer sees an end with zero chunks and a null first-audio
	// latency.
	logging.LogSynthesisOperation("stream_complete",
		zap.String("prediction_id", pred.ID),
		zap.Int("chunk_count", stats.ChunkCount),
		zap.Duration("first_audio", stats.FirstAudio),
	)
	return stats, nil
}

// IsMissingCredential reports whether the error stems from an absent
// provider token, as opposed to an upstream or protocol failure.
func IsMissingCredential(err error) bool {
	return errors.Is(err, replicate.ErrMissingToken)
}
