// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcriber turns media files into transcript text: ffmpeg
// extracts an mp3 track from video, a speech backend recognizes it, and
// Format breaks the recognized text into one sentence per line.
package transcriber

import (
	"context"
	"regexp"
)

// Backend recognizes speech in an mp3 audio stream.
type Backend interface {
	// Transcribe returns the recognized text, or "" when no speech was
	// recognized.
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// sentenceJoin matches a sentence end run into the next sentence, as
// recognizers emit consecutive phrases without a separator.
var sentenceJoin = regexp.MustCompile(`\.([A-Z0-9])`)

// Format inserts a line break after every period immediately followed
// by a capital letter or digit.
func Format(transcript string) string {
	return sentenceJoin.ReplaceAllString(transcript, ".\n$1")
}
