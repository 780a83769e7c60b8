// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/remotefile"
)

// Remote is an open connection to a source's file drop.
type Remote interface {
	WorkingDirectory() (string, error)
	List(ctx context.Context, dir string) ([]remotefile.File, error)
	Download(ctx context.Context, remotePath, localPath string) (bool, error)
	Close() error
}

// DialFunc opens a Remote.
type DialFunc func(ctx context.Context, config remotefile.Config, logger *slog.Logger) (Remote, error)

// DialSFTP dials with remotefile.Dial.
func DialSFTP(ctx context.Context, config remotefile.Config, logger *slog.Logger) (Remote, error) {
	client, err := remotefile.Dial(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Source is one remote image drop.
type Source struct {
	Code       string
	Connection remotefile.Config
	// Path is the remote directory. "<date>" is replaced with the scan
	// date formatted with PathLayout; a leading "~/" is the login
	// directory.
	Path       string
	PathLayout string
	// FilePattern is a regular expression file names must match, with
	// "<date>" replaced as in Path (upper case).
	FilePattern string
	ProductID   int64
}

// Sources holds one cached connection per source. Safe for concurrent
// use by the scanner and the consume task.
type Sources struct {
	sources map[string]Source
	dial    DialFunc
	logger  *slog.Logger

	mu      sync.Mutex
	remotes map[string]Remote
}

// NewSources returns connections for sources, keyed by upper-case
// code.
func NewSources(sources []Source, dial DialFunc, logger *slog.Logger) *Sources {
	byCode := make(map[string]Source, len(sources))
	for _, source := range sources {
		byCode[strings.ToUpper(source.Code)] = source
	}
	return &Sources{sources: byCode, dial: dial, logger: logger, remotes: make(map[string]Remote)}
}

// Lookup returns the source configured under code.
func (s *Sources) Lookup(code string) (Source, bool) {
	source, ok := s.sources[strings.ToUpper(code)]
	return source, ok
}

// All returns every configured source.
func (s *Sources) All() []Source {
	all := make([]Source, 0, len(s.sources))
	for _, source := range s.sources {
		all = append(all, source)
	}
	return all
}

// Remote returns the open connection for code, dialing when there is
// none. An unknown code is a configuration error.
func (s *Sources) Remote(ctx context.Context, code string) (Remote, error) {
	source, ok := s.Lookup(code)
	if !ok {
		return nil, &consumer.ConfigError{Component: "image source", Err: fmt.Errorf("source %q is not configured", code)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if remote, ok := s.remotes[source.Code]; ok {
		return remote, nil
	}
	remote, err := s.dial(ctx, source.Connection, s.logger.With("source", source.Code))
	if err != nil {
		return nil, fmt.Errorf("connecting to source %s: %w", source.Code, err)
	}
	s.remotes[source.Code] = remote
	return remote, nil
}

// Drop closes and forgets the connection for code, so the next Remote
// redials. Called after a transfer fails.
func (s *Sources) Drop(code string) {
	source, ok := s.Lookup(code)
	if !ok {
		return
	}
	s.mu.Lock()
	remote, ok := s.remotes[source.Code]
	delete(s.remotes, source.Code)
	s.mu.Unlock()
	if ok {
		if err := remote.Close(); err != nil {
			s.logger.Debug("closing remote", "source", source.Code, "error", err)
		}
	}
}

// Close closes every open connection.
func (s *Sources) Close() {
	for _, source := range s.All() {
		s.Drop(source.Code)
	}
}

// Directory returns the remote directory for source on date.
func (s Source) Directory(remote Remote, date time.Time) (string, error) {
	dir := s.Path
	if s.PathLayout != "" {
		dir = strings.ReplaceAll(dir, "<date>", date.Format(s.PathLayout))
	}
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		home, err := remote.WorkingDirectory()
		if err != nil {
			return "", fmt.Errorf("resolving login directory: %w", err)
		}
		dir = strings.TrimRight(home, "/") + "/" + rest
	}
	return dir, nil
}
