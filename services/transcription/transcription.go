// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcription writes speech-to-text transcripts into the
// body of audio and video content.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/contenthash"
	"github.com/mmia-foundation/mmia/lib/schema"
	"github.com/mmia-foundation/mmia/transcriber"
	"github.com/mmia-foundation/mmia/workorder"
)

// API is the part of the data API the service uses.
type API interface {
	FindContent(ctx context.Context, id int64) (*schema.Content, error)
	UpdateContent(ctx context.Context, content *schema.Content) (*schema.Content, error)
}

// AudioExtractor produces an mp3 track from a video file.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, source string) (string, error)
}

// Config locates media and sets the default language.
type Config struct {
	// VolumePath is the root file references are relative to.
	VolumePath string
	// Language is used when a request does not name one.
	Language string
}

// Strategy processes TranscriptRequest messages.
type Strategy struct {
	api       API
	tracker   *workorder.Tracker
	backend   transcriber.Backend
	extractor AudioExtractor
	config    Config
}

// NewStrategy returns the transcription strategy.
func NewStrategy(api API, tracker *workorder.Tracker, backend transcriber.Backend, extractor AudioExtractor, config Config) *Strategy {
	if config.Language == "" {
		config.Language = "en-CA"
	}
	return &Strategy{api: api, tracker: tracker, backend: backend, extractor: extractor, config: config}
}

// CheckOwnership proceeds for requests naming content.
func (s *Strategy) CheckOwnership(_ context.Context, message *consumer.Message[schema.TranscriptRequest]) (consumer.Ownership, error) {
	if message.Value.ContentID == 0 {
		return consumer.SkipMessage("transcript request has no content id"), nil
	}
	return consumer.Proceed(), nil
}

// UpdateStatus moves the request's work order.
func (s *Strategy) UpdateStatus(ctx context.Context, message *consumer.Message[schema.TranscriptRequest], status schema.WorkOrderStatus) (consumer.Transition, error) {
	transition, _, err := s.tracker.Transition(ctx, message.Value.WorkOrderID, status, "")
	return transition, err
}

// PerformAction transcribes the content's first file and writes the
// formatted transcript to the content body.
func (s *Strategy) PerformAction(ctx context.Context, message *consumer.Message[schema.TranscriptRequest]) error {
	request := &message.Value
	logger := message.Logger.With("content_id", request.ContentID)

	content, err := s.api.FindContent(ctx, request.ContentID)
	if err != nil {
		return fmt.Errorf("fetching content %d: %w", request.ContentID, err)
	}
	if content == nil {
		return consumer.Skip("content %d does not exist", request.ContentID)
	}

	path, err := s.mediaPath(content)
	if err != nil {
		return err
	}
	if transcriber.IsVideo(path) {
		path, err = s.extractor.ExtractAudio(ctx, path)
		if err != nil {
			return fmt.Errorf("extracting audio for content %d: %w", content.ID, err)
		}
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	language := request.Language
	if language == "" {
		language = s.config.Language
	}
	logger.Info("transcription requested", "path", path, "language", language, "bytes", len(audio))
	transcript, err := s.backend.Transcribe(ctx, audio, language)
	if err != nil {
		return fmt.Errorf("transcribing content %d: %w", content.ID, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return consumer.Skip("content %d did not produce a transcript", content.ID)
	}

	original := contenthash.BodyDigest(content.Body)
	current, err := s.api.FindContent(ctx, content.ID)
	if err != nil {
		return fmt.Errorf("fetching content %d: %w", content.ID, err)
	}
	if current == nil {
		return consumer.Skip("content %d no longer exists", content.ID)
	}
	if contenthash.BodyDigest(current.Body) != original {
		logger.Warn("content body changed during transcription, overwriting")
	}

	current.Body = transcriber.Format(transcript)
	if _, err := s.api.UpdateContent(ctx, current); err != nil {
		return fmt.Errorf("updating content %d: %w", content.ID, err)
	}
	logger.Info("transcription updated", "characters", len(current.Body))
	return nil
}

// mediaPath resolves the content's first file reference under the
// volume. A missing reference or file cannot be fixed by retrying.
func (s *Strategy) mediaPath(content *schema.Content) (string, error) {
	if len(content.FileReferences) == 0 {
		return "", consumer.Skip("content %d has no file", content.ID)
	}
	reference := content.FileReferences[0]
	relative := filepath.Clean("/" + reference.Path)
	path := filepath.Join(s.config.VolumePath, relative)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", consumer.Skip("file %s for content %d does not exist", path, content.ID)
	}
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}
	if info.IsDir() {
		return "", consumer.Skip("file reference %s for content %d is a directory", path, content.ID)
	}
	return path, nil
}
