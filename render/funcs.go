// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"
)

// funcs are available to every template.
var funcs = map[string]any{
	"date":      formatDate,
	"truncate":  truncate,
	"lines":     lines,
	"join":      strings.Join,
	"upper":     strings.ToUpper,
	"lower":     strings.ToLower,
	"base64":    func(data []byte) string { return base64.StdEncoding.EncodeToString(data) },
	"hasPrefix": strings.HasPrefix,
}

// formatDate formats t with a Go layout; nil and zero times render
// empty. It accepts time.Time and *time.Time.
func formatDate(layout string, value any) string {
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return ""
		}
		t = *v
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

// truncate shortens s to at most n runes, ending with an ellipsis when
// cut.
func truncate(n int, s string) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:n]), " ") + "…"
}

// lines splits s on line breaks, dropping blank lines.
func lines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
