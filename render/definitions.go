// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/mmia-foundation/mmia/lib/schema"
)

// Definitions are fallback templates keyed by name, read from a JSONC
// file. Services use them when a notification or report carries no
// template of its own.
type Definitions map[string]schema.Template

// ParseDefinitions strips JSONC comments and trailing commas from data
// and decodes the template map.
func ParseDefinitions(data []byte) (Definitions, error) {
	var definitions Definitions
	if err := json.Unmarshal(jsonc.ToJSON(data), &definitions); err != nil {
		return nil, fmt.Errorf("parsing template definitions: %w", err)
	}
	for name, template := range definitions {
		if _, err := ParseFormat(template.Format); err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
		template.Name = name
		definitions[name] = template
	}
	return definitions, nil
}

// ReadDefinitions reads a JSONC definitions file. An empty path yields
// no definitions.
func ReadDefinitions(path string) (Definitions, error) {
	if path == "" {
		return Definitions{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	definitions, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return definitions, nil
}

// Resolve returns own when it has a body, otherwise the definition
// named fallback.
func (d Definitions) Resolve(own *schema.Template, fallback string) (schema.Template, error) {
	if own != nil && own.Body != "" {
		return *own, nil
	}
	if template, ok := d[fallback]; ok {
		return template, nil
	}
	return schema.Template{}, fmt.Errorf("render: no template and no %q definition", fallback)
}
