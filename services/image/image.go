// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package image ingests newspaper front page images from remote drops.
//
// A Scanner lists each source's drop on a cron schedule and publishes
// one ImageRequest per matching file. The Strategy claims the file's
// content reference, so only one worker copies it, downloads it into
// the volume and announces it with a SourceContent message.
package image

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmia-foundation/mmia/broker"
	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/contentref"
	"github.com/mmia-foundation/mmia/lib/contenthash"
	"github.com/mmia-foundation/mmia/lib/schema"
)

// Config places downloads and names the output topic.
type Config struct {
	VolumePath  string
	OutputTopic string
	// Location is the time zone of the dated download directory.
	Location *time.Location
}

// Strategy processes ImageRequest messages.
type Strategy struct {
	references *contentref.Manager
	sources    *Sources
	producer   broker.Producer
	config     Config

	// claimed holds references claimed by CheckOwnership until the
	// action settles them, keyed by record position. A retry of the
	// same record finds its own claim here instead of skipping.
	mu      sync.Mutex
	claimed map[string]*schema.ContentReference
}

// NewStrategy returns the image strategy.
func NewStrategy(references *contentref.Manager, sources *Sources, producer broker.Producer, config Config) *Strategy {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Strategy{
		references: references,
		sources:    sources,
		producer:   producer,
		config:     config,
		claimed:    make(map[string]*schema.ContentReference),
	}
}

// ReferenceFor returns the content reference identifying request.
func ReferenceFor(request *schema.ImageRequest) schema.ContentReference {
	publishedOn := request.PublishedOn
	return schema.ContentReference{
		Source:      request.Source,
		UID:         contenthash.ReferenceUID(request.Source, request.FileName, publishedOn),
		PublishedOn: &publishedOn,
	}
}

// CheckOwnership claims the file's content reference.
func (s *Strategy) CheckOwnership(ctx context.Context, message *consumer.Message[schema.ImageRequest]) (consumer.Ownership, error) {
	request := &message.Value
	if request.Source == "" || request.FileName == "" {
		return consumer.SkipMessage("image request without source or file name"), nil
	}

	key := message.Record.String()
	s.mu.Lock()
	_, retry := s.claimed[key]
	s.mu.Unlock()
	if retry {
		return consumer.Proceed(), nil
	}

	reference := ReferenceFor(request)
	reference.Topic = message.Record.Topic
	reference.Partition = message.Record.Partition
	reference.Offset = message.Record.Offset
	claim, err := s.references.Claim(ctx, reference)
	if err != nil {
		return consumer.Ownership{}, err
	}
	if !claim.Owned {
		return consumer.SkipMessage("content reference %s/%s: %s", reference.Source, reference.UID, claim.Reason), nil
	}
	message.Logger.Debug("content reference claimed", "uid", reference.UID, "reason", claim.Reason)

	s.mu.Lock()
	s.claimed[key] = claim.Reference
	s.mu.Unlock()
	return consumer.Proceed(), nil
}

// UpdateStatus reports no work order.
func (s *Strategy) UpdateStatus(context.Context, *consumer.Message[schema.ImageRequest], schema.WorkOrderStatus) (consumer.Transition, error) {
	return consumer.TransitionAbsent, nil
}

// PerformAction downloads the file, publishes the SourceContent and
// completes the reference. Files that can never be copied fail the
// reference.
func (s *Strategy) PerformAction(ctx context.Context, message *consumer.Message[schema.ImageRequest]) error {
	key := message.Record.String()
	s.mu.Lock()
	reference := s.claimed[key]
	s.mu.Unlock()
	if reference == nil {
		return fmt.Errorf("no claimed content reference for %s", key)
	}

	err := s.ingest(ctx, message, reference)
	switch consumer.Classify(err) {
	case consumer.ClassNone:
		if err != nil {
			return err
		}
	case consumer.ClassSkip:
		if _, failErr := s.references.Fail(ctx, reference); failErr != nil {
			message.Logger.Error("marking content reference failed", "uid", reference.UID, "error", failErr)
		}
	default:
		return err
	}
	s.mu.Lock()
	delete(s.claimed, key)
	s.mu.Unlock()
	return err
}

func (s *Strategy) ingest(ctx context.Context, message *consumer.Message[schema.ImageRequest], reference *schema.ContentReference) error {
	request := &message.Value
	source, ok := s.sources.Lookup(request.Source)
	if !ok {
		return consumer.Skip("source %q is not configured", request.Source)
	}
	remote, err := s.sources.Remote(ctx, source.Code)
	if err != nil {
		return err
	}

	day := request.PublishedOn.In(s.config.Location).Format("2006-01-02")
	relative := path.Join(source.Code, day, path.Base(request.FileName))
	local := filepath.Join(s.config.VolumePath, filepath.FromSlash(relative))
	downloaded, err := remote.Download(ctx, request.Path, local)
	if err != nil {
		if consumer.Classify(err) != consumer.ClassSkip {
			s.sources.Drop(source.Code)
		}
		return fmt.Errorf("copying %s: %w", request.Path, err)
	}
	if !downloaded {
		message.Logger.Info("image already on disk", "path", local)
	}

	productID := request.ProductID
	if productID == 0 {
		productID = source.ProductID
	}
	content := schema.SourceContent{
		UID:         reference.UID,
		Source:      source.Code,
		ContentType: schema.ContentImage,
		ProductID:   productID,
		Title:       source.Code + " Frontpage",
		PublishedOn: request.PublishedOn.UTC(),
		FilePath:    relative,
		Status:      "Received",
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encoding source content: %w", err)
	}
	if err := s.producer.Publish(ctx, s.config.OutputTopic, []byte(content.UID), encoded); err != nil {
		return fmt.Errorf("publishing source content %s: %w", content.UID, err)
	}
	// The reference stays InProgress until the content is announced, so
	// a failed publish is retried under the same claim.
	if _, err := s.references.Complete(ctx, reference); err != nil {
		return err
	}
	message.Logger.Info("image ingested", "source", source.Code, "uid", content.UID, "path", relative)
	return nil
}
