// Package publish writes rendered schedule views to disk and, optionally,
// to a remote static host.
package publish

import (
	"errors"
	"fmt"
	"html"
	"os"
	"strings"
)

// ErrTemplate marks a template that cannot be substituted.
var ErrTemplate = errors.New("invalid template")

// Template is a page with at most one "{}" placeholder. "{{" and "}}" stand
// for literal braces; any other brace is an error.
type Template struct {
	text   string
	escape bool
}

// LoadTemplate reads a template file.
func LoadTemplate(path string, escapeHTML bool) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return NewTemplate(string(b), escapeHTML)
}

// NewTemplate validates text and returns a Template. With escapeHTML, the
// substituted text is HTML-escaped first.
func NewTemplate(text string, escapeHTML bool) (*Template, error) {
	if _, err := substitute(text, ""); err != nil {
		return nil, err
	}
	return &Template{text: text, escape: escapeHTML}, nil
}

// Render substitutes body into the placeholder.
func (t *Template) Render(body string) string {
	if t.escape {
		body = html.EscapeString(body)
	}
	out, _ := substitute(t.text, body)
	return out
}

func substitute(tmpl, body string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl) + len(body))

	placeholders := 0
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				placeholders++
				if placeholders > 1 {
					return "", fmt.Errorf("%w: more than one {} placeholder", ErrTemplate)
				}
				b.WriteString(body)
				i++
				continue
			}
			return "", fmt.Errorf("%w: unsupported field at offset %d", ErrTemplate, i)
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", ErrTemplate, i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
