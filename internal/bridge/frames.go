/*
Copyright (c) 2025 Verba Labs

Licensed under the AGPLv3 License.
This file is part of verba-bridge.
*/

package bridge

// Control frames sent to the client as JSON text messages. Audio itself
// travels as binary frames between start and end.

type startFrame struct {
	Type       string `json:"type"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
}

type endFrame struct {
	Type       string `json:"type"`
	ChunkCount int    `json:"chunkCount"`
	// FirstAudioMs is null when the stream produced no audio.
	FirstAudioMs *int64 `json:"firstAudioMs"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
