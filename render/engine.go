// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package render produces email subjects and bodies from stored
// templates.
//
// Subjects are text templates. Bodies are HTML templates, or text
// templates whose output is markdown converted to HTML when the
// template's format is "markdown". Compiled templates are cached by key
// and recompiled when the source under a key changes.
package render

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/mmia-foundation/mmia/lib/schema"
)

// Format names a body template format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// ParseFormat maps a stored format name onto a Format. Empty means
// HTML.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("render: unknown template format %q", name)
}

type cached struct {
	digest [sha256.Size]byte
	text   *texttemplate.Template
	html   *htmltemplate.Template
}

// Engine renders templates. It is safe for concurrent use.
type Engine struct {
	mu    sync.Mutex
	cache map[string]*cached
}

// NewEngine returns an engine with an empty cache.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*cached)}
}

// Subject renders a one-line subject from a text template. Line breaks
// in the output are collapsed to spaces.
func (e *Engine) Subject(key, source string, data any) (string, error) {
	entry, err := e.compile(key+"#subject", source, false)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := entry.text.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render: executing subject %s: %w", key, err)
	}
	return strings.Join(strings.Fields(out.String()), " "), nil
}

// Body renders an email body in format. Any format other than
// FormatMarkdown renders as HTML.
func (e *Engine) Body(key, source string, format Format, data any) (string, error) {
	if format != FormatMarkdown {
		format = FormatHTML
	}
	entry, err := e.compile(key+"#body#"+string(format), source, format == FormatHTML)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if format == FormatMarkdown {
		if err := entry.text.Execute(&out, data); err != nil {
			return "", fmt.Errorf("render: executing body %s: %w", key, err)
		}
		return markdownToHTML(out.Bytes())
	}
	if err := entry.html.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render: executing body %s: %w", key, err)
	}
	return out.String(), nil
}

// Render renders both halves of a stored template under key.
func (e *Engine) Render(key string, template schema.Template, data any) (subject, body string, err error) {
	format, err := ParseFormat(template.Format)
	if err != nil {
		return "", "", err
	}
	if subject, err = e.Subject(key, template.Subject, data); err != nil {
		return "", "", err
	}
	if body, err = e.Body(key, template.Body, format, data); err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// Invalidate drops every cached template under key.
func (e *Engine) Invalidate(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for cacheKey := range e.cache {
		if cacheKey == key || strings.HasPrefix(cacheKey, key+"#") {
			delete(e.cache, cacheKey)
		}
	}
}

// Len returns the number of cached templates.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// compile returns the cached template for key, compiling source when
// the key is new or its source changed.
func (e *Engine) compile(key, source string, asHTML bool) (*cached, error) {
	digest := sha256.Sum256([]byte(source))

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.cache[key]; ok && entry.digest == digest {
		return entry, nil
	}

	entry := &cached{digest: digest}
	var err error
	if asHTML {
		entry.html, err = htmltemplate.New(key).Funcs(htmltemplate.FuncMap(funcs)).Parse(source)
	} else {
		entry.text, err = texttemplate.New(key).Funcs(texttemplate.FuncMap(funcs)).Parse(source)
	}
	if err != nil {
		return nil, fmt.Errorf("render: parsing %s: %w", key, err)
	}
	e.cache[key] = entry
	return entry, nil
}
