// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpeg converts media with an ffmpeg binary.
type FFmpeg struct {
	path   string
	logger *slog.Logger
}

// NewFFmpeg returns a converter running the binary at path, looked up
// on PATH when it has no directory.
func NewFFmpeg(path string, logger *slog.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, logger: logger}
}

// maxOutputTail bounds how much ffmpeg output an error carries.
const maxOutputTail = 2048

// ExtractAudio writes an mp3 next to source, replacing an existing
// one, and returns its path.
func (f *FFmpeg) ExtractAudio(ctx context.Context, source string) (string, error) {
	destination := strings.TrimSuffix(source, filepath.Ext(source)) + ".mp3"
	command := exec.CommandContext(ctx, f.path, "-i", source, "-y", destination)
	output, err := command.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		tail := string(output)
		if len(tail) > maxOutputTail {
			tail = tail[len(tail)-maxOutputTail:]
		}
		f.logger.Error("audio extraction failed", "source", source, "output", tail)
		return "", fmt.Errorf("transcriber: ffmpeg %s: %w", filepath.Base(source), err)
	}
	return destination, nil
}

// IsVideo reports whether path needs audio extraction before
// recognition.
func IsVideo(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp4")
}
