package templates

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Renderer renders small text templates for follow-up messages. The zero
// value is ready to use; parsed templates are cached by name and text.
type Renderer struct {
	mu    sync.Mutex
	cache map[string]*template.Template
}

// LeadData is the data passed to lead follow-up templates.
type LeadData struct {
	Name   string
	Email  string
	Phone  string
	Status string
	Source string
}

// Greeting returns the name to address a lead by, or "there" when unknown.
func Greeting(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return strings.TrimSpace(name)
}

// Render compiles the provided template text with strict missing-key semantics.
func (r *Renderer) Render(name, tmpl string, data any) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("templates: template text required")
	}
	t, err := r.parse(name, tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) parse(name, tmpl string) (*template.Template, error) {
	key := name + "\x00" + tmpl
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.cache[key]; ok {
		return t, nil
	}
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("templates: parse: %w", err)
	}
	if r.cache == nil {
		r.cache = make(map[string]*template.Template)
	}
	r.cache[key] = t
	return t, nil
}
