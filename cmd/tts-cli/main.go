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

// tts-cli synthesizes a text to an audio file from the command line, using
// the same provider pipeline as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/events"
	"github.com/verbalabs/verba-bridge/internal/replicate"
	"github.com/verbalabs/verba-bridge/internal/storage"
	"github.com/verbalabs/verba-bridge/internal/tts"
)

func main() {
	var (
		text    = flag.String("text", "", "Text to synthesize (required)")
		output  = flag.String("o", "out.mp3", "Output file path")
		voice   = flag.String("voice", "", "Voice ID (defaults to the configured voice)")
		model   = flag.String("model", "", "TTS model (defaults to the configured model)")
		speed   = flag.Float64("speed", 1.0, "Speech speed, clamped to [0.5, 2.0]")
		emotion = flag.String("emotion", "auto", "Emotion preset")
		timeout = flag.Duration("timeout", 3*time.Minute, "Overall synthesis timeout")
		noTrail = flag.Bool("no-trail", false, "Skip recording the run on the event trail")
	)
	flag.Parse()

	if *text == "" {
		fmt.Fprintln(os.Stderr, "Error: -text is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	partial := tts.Partial{
		"speed":   *speed,
		"emotion": *emotion,
	}
	if *voice != "" {
		partial["voiceId"] = *voice
	} else {
		partial["voiceId"] = cfg.TTS.Voice
	}
	if *model != "" {
		partial["model"] = *model
	} else {
		partial["model"] = cfg.TTS.Model
	}
	settings := tts.Clamp(partial)

	client := tts.NewPollingClient(replicate.NewClient(cfg.Replicate), cfg.Replicate)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	event := events.NewSynthesisEvent(events.SourceCLI, settings.Model, settings.VoiceID, len(*text))

	fmt.Printf("Synthesizing %d characters with %s (%s)...\n", len(*text), settings.Model, settings.VoiceID)
	audio, err := client.Synthesize(ctx, *text, settings)
	if err != nil {
		event.SetError(err)
		recordTrail(cfg, event, *noTrail)
		fmt.Fprintf(os.Stderr, "Error: synthesis failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*output, audio, 0o644); err != nil {
		event.SetError(err)
		recordTrail(cfg, event, *noTrail)
		fmt.Fprintf(os.Stderr, "Error: failed to write %s: %v\n", *output, err)
		os.Exit(1)
	}

	event.SetResult(1, nil, len(audio))
	event.SetArtifact(*output)
	recordTrail(cfg, event, *noTrail)

	fmt.Printf("Wrote %d bytes to %s\n", len(audio), *output)
}

// recordTrail appends the run to the synthesis event trail. Trail failures
// never fail the CLI.
func recordTrail(cfg *config.Config, event *events.SynthesisEvent, skip bool) {
	if skip {
		return
	}

	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Storage.DBPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: event trail unavailable: %v\n", err)
		return
	}
	defer db.Close()

	if err := storage.NewSynthesisEventsStore(db).Insert(event); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record event: %v\n", err)
	}
}
