package templaterender

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template is a parsed text template that fails on missing keys.
type Template struct {
	t *template.Template
}

// Parse compiles src under name.
func Parse(name, src string) (*Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Template{t: t}, nil
}

// MustParse is Parse for package-level templates.
func MustParse(name, src string) *Template {
	t, err := Parse(name, src)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := t.t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", t.t.Name(), err)
	}
	return buf.String(), nil
}
