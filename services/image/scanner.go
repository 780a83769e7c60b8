// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/mmia-foundation/mmia/broker"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/cron"
	"github.com/mmia-foundation/mmia/lib/schema"
)

// Scanner lists every source on a schedule and requests ingestion of
// each matching file.
type Scanner struct {
	sources  *Sources
	producer broker.Producer
	topic    string
	schedule cron.Schedule
	location *time.Location
	clock    clock.Clock
	logger   *slog.Logger
}

// NewScanner returns a Scanner publishing ImageRequest messages to
// topic. Schedule times and file dates are in location.
func NewScanner(sources *Sources, producer broker.Producer, topic string, schedule cron.Schedule, location *time.Location, clk clock.Clock, logger *slog.Logger) *Scanner {
	if location == nil {
		location = time.UTC
	}
	return &Scanner{
		sources:  sources,
		producer: producer,
		topic:    topic,
		schedule: schedule,
		location: location,
		clock:    clk,
		logger:   logger,
	}
}

// Run scans at every scheduled time until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		now := s.clock.Now().In(s.location)
		next, err := s.schedule.Next(now)
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(next.Sub(now)):
		}
		requested, err := s.Scan(ctx)
		if err != nil {
			s.logger.Warn("image scan incomplete", "requested", requested, "error", err)
			continue
		}
		s.logger.Debug("image scan finished", "requested", requested)
	}
}

// Scan lists each source for today's files and returns the number of
// requests published. A failing source does not stop the others; the
// returned error joins their failures.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	today := s.clock.Now().In(s.location)
	requested := 0
	var failures []string
	for _, source := range s.sources.All() {
		count, err := s.scanSource(ctx, source, today)
		requested += count
		if err != nil {
			if ctx.Err() != nil {
				return requested, ctx.Err()
			}
			s.sources.Drop(source.Code)
			failures = append(failures, fmt.Sprintf("%s: %v", source.Code, err))
		}
	}
	if len(failures) > 0 {
		return requested, fmt.Errorf("scanning sources: %s", strings.Join(failures, "; "))
	}
	return requested, nil
}

func (s *Scanner) scanSource(ctx context.Context, source Source, date time.Time) (int, error) {
	pattern, err := source.fileMatcher(date)
	if err != nil {
		return 0, err
	}
	remote, err := s.sources.Remote(ctx, source.Code)
	if err != nil {
		return 0, err
	}
	dir, err := source.Directory(remote, date)
	if err != nil {
		return 0, err
	}
	files, err := remote.List(ctx, dir)
	if err != nil {
		return 0, err
	}

	publishedOn := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.location)
	count := 0
	for _, file := range files {
		if pattern != nil && !pattern.MatchString(file.Name) {
			continue
		}
		request := schema.ImageRequest{
			Source:      source.Code,
			Path:        path.Join(dir, file.Name),
			FileName:    file.Name,
			PublishedOn: publishedOn,
			Size:        file.Size,
			ProductID:   source.ProductID,
		}
		encoded, err := json.Marshal(request)
		if err != nil {
			return count, fmt.Errorf("encoding image request: %w", err)
		}
		if err := s.producer.Publish(ctx, s.topic, []byte(source.Code+"/"+file.Name), encoded); err != nil {
			return count, fmt.Errorf("publishing image request for %s: %w", file.Name, err)
		}
		count++
	}
	s.logger.Info("source scanned", "source", source.Code, "dir", dir, "files", len(files), "requested", count)
	return count, nil
}

// fileMatcher compiles FilePattern for date. An empty pattern matches
// every file.
func (s Source) fileMatcher(date time.Time) (*regexp.Regexp, error) {
	if s.FilePattern == "" {
		return nil, nil
	}
	pattern := s.FilePattern
	if s.PathLayout != "" {
		stamp := strings.ToUpper(date.Format(s.PathLayout))
		pattern = strings.ReplaceAll(pattern, "<date>", regexp.QuoteMeta(stamp))
	}
	matcher, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("file pattern for source %s: %w", s.Code, err)
	}
	return matcher, nil
}
