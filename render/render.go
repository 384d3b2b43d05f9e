// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// DefaultTemplate renders a command's conventional "body" output
// field unchanged.
const DefaultTemplate = "{{.body}}"

// Renderer turns a command's structured output into chat text.
// Parsed templates are cached by source text; the cache is the only
// state and is safe for concurrent use.
type Renderer struct {
	mu    sync.Mutex
	cache map[string]*template.Template
}

// New creates a renderer with an empty template cache.
func New() *Renderer {
	return &Renderer{cache: make(map[string]*template.Template)}
}

// Render executes templateText against data. Missing keys are an
// error, not silent "<no value>" output — a command whose output does
// not match its template is a bug worth surfacing.
func (r *Renderer) Render(templateText string, data map[string]any) (string, error) {
	parsed, err := r.parse(templateText)
	if err != nil {
		return "", fmt.Errorf("parsing response template: %w", err)
	}
	var out strings.Builder
	if err := parsed.Execute(&out, data); err != nil {
		return "", fmt.Errorf("rendering response: %w", err)
	}
	return out.String(), nil
}

func (r *Renderer) parse(templateText string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if parsed, cached := r.cache[templateText]; cached {
		return parsed, nil
	}
	parsed, err := template.New("response").Option("missingkey=error").Parse(templateText)
	if err != nil {
		return nil, err
	}
	r.cache[templateText] = parsed
	return parsed, nil
}
