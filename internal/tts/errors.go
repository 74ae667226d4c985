/*
Copyright (c) 2025 Verba Labs

Licensed under the AGPLv3 License.
This file is part of verba-bridge.
*/

package tts

import "errors"

// ErrInvalidInput marks requests rejected before any upstream call, such as
// empty synthesis text. HTTP handlers map it to a 400 response.
var ErrInvalidInput = errors.New("invalid input")
