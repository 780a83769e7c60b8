// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownInstance
}

// markdownToHTML converts a rendered markdown body. Raw HTML in the
// source is dropped.
func markdownToHTML(source []byte) (string, error) {
	var out bytes.Buffer
	if err := markdown().Convert(source, &out); err != nil {
		return "", fmt.Errorf("render: converting markdown: %w", err)
	}
	return out.String(), nil
}
