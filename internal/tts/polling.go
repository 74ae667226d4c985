/*
Copyright (c) 2025 Verba Labs

Licensed under the AGPLv3 License.
This file is part of verba-bridge.
*/

package tts

import (
	"context"
	"time"

	"github.com/verbalabs/verba-bridge/internal/config"
	"github.com/verbalabs/verba-bridge/internal/replicate"
)

// PollingClient synthesizes a complete audio file in one call, for the HTTP
// route and the CLI where streaming is not needed.
type PollingClient struct {
	client      *replicate.Client
	interval    time.Duration
	maxAttempts int
}

func NewPollingClient(client *replicate.Client, cfg config.ReplicateConfig) *PollingClient {
	return &PollingClient{
		client:      client,
		interval:    cfg.PollInterval,
		maxAttempts: cfg.PollMaxAttempts,
	}
}

// Synthesize runs a synthesis to completion and returns the full audio
// payload.
func (p *PollingClient) Synthesize(ctx context.Context, text string, settings Settings) ([]byte, error) {
	input, err := BuildProviderInput(text, settings)
	if err != nil {
		return nil, err
	}

	pred, err := p.client.CreatePrediction(ctx, settings.Model, input)
	if err != nil {
		return nil, err
	}

	final, err := p.client.Wait(ctx, pred, p.interval, p.maxAttempts)
	if err != nil {
		return nil, err
	}

	url, err := final.OutputURL()
	if err != nil {
		return nil, &replicate.UpstreamError{Message: err.Error()}
	}

	return p.client.DownloadOutput(ctx, url)
}
