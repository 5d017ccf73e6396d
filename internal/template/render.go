// Package template implements the DSL's two-pass text renderer (C1): scalar
// substitution via {{name}} and single-level iteration via
// {{#each list}}...{{/each}}. It is deliberately not Turing-complete: no
// nesting, no conditionals.
package template

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownDirective is returned when the template contains a directive
// other than a scalar substitution or a single #each block.
var ErrUnknownDirective = errors.New("template: unknown directive")

// Scope is the variable bag a template is rendered against. Values are
// scalars (rendered via fmt.Sprint, booleans as True/False) or []Scope for
// the list bound by an #each block.
type Scope map[string]any

// Render expands tmpl against scope. If the template contains an #each
// block whose list is empty and emptyText is non-empty, emptyText is
// returned verbatim with no further rendering, per §4.1.
func Render(tmpl string, scope Scope, emptyText string) (string, error) {
	start := strings.Index(tmpl, "{{#each")
	if start == -1 {
		if err := checkUnknownDirectives(tmpl); err != nil {
			return renderScalarsBestEffort(tmpl, scope), err
		}
		return renderScalars(tmpl, scope), nil
	}

	openEnd := strings.Index(tmpl[start:], "}}")
	if openEnd == -1 {
		return renderScalars(tmpl, scope), fmt.Errorf("%w: unterminated #each", ErrUnknownDirective)
	}
	openEnd += start + 2

	closeIdx := strings.Index(tmpl[openEnd:], "{{/each}}")
	if closeIdx == -1 {
		return renderScalars(tmpl, scope), fmt.Errorf("%w: missing /each", ErrUnknownDirective)
	}
	closeIdx += openEnd

	header := strings.TrimSpace(tmpl[start+len("{{#each") : openEnd-2])
	listName := strings.TrimSpace(header)
	body := tmpl[openEnd:closeIdx]
	after := closeIdx + len("{{/each}}")

	if strings.Contains(tmpl[after:], "{{#each") || strings.Contains(body, "{{#each") {
		return renderScalars(tmpl, scope), fmt.Errorf("%w: nested #each is not supported", ErrUnknownDirective)
	}

	items, _ := scope[listName].([]Scope)
	if len(items) == 0 && emptyText != "" {
		return emptyText, nil
	}

	var b strings.Builder
	b.WriteString(renderScalars(tmpl[:start], scope))
	for _, item := range items {
		merged := make(Scope, len(scope)+len(item))
		for k, v := range scope {
			merged[k] = v
		}
		for k, v := range item {
			merged[k] = v
		}
		b.WriteString(renderScalars(body, merged))
	}
	b.WriteString(renderScalars(tmpl[after:], scope))

	if err := checkUnknownDirectives(tmpl[:start] + tmpl[after:]); err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

// checkUnknownDirectives rejects any {{...}} tag that is empty, contains one
// of # / { }, or is left unterminated.
func checkUnknownDirectives(s string) error {
	for {
		start := strings.Index(s, "{{")
		if start == -1 {
			return nil
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			return fmt.Errorf("%w: unterminated tag", ErrUnknownDirective)
		}
		end += start
		name := strings.TrimSpace(s[start+2 : end])
		if name == "" || strings.ContainsAny(name, "#/{}") {
			return fmt.Errorf("%w: %q", ErrUnknownDirective, name)
		}
		s = s[end+2:]
	}
}

// renderScalars substitutes every {{name}} in s with its scalar value from
// scope. Directive tags (empty, or containing # / { }) are dropped, and an
// unterminated tag is kept as literal text, so the caller's error return
// still carries best-effort text.
func renderScalars(s string, scope Scope) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start == -1 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			b.WriteString(s)
			return b.String()
		}
		end += start
		name := strings.TrimSpace(s[start+2 : end])
		b.WriteString(s[:start])
		if name != "" && !strings.ContainsAny(name, "#/{}") {
			b.WriteString(scalarString(scope[name]))
		}
		s = s[end+2:]
	}
}

// renderScalarsBestEffort strips the directive markers themselves while
// still substituting scalar names, matching the documented fallback for a
// render error: "literal template minus the directive".
func renderScalarsBestEffort(s string, scope Scope) string {
	s = strings.ReplaceAll(s, "{{#each", "{{")
	s = strings.ReplaceAll(s, "{{/each}}", "")
	return renderScalars(s, scope)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "True"
		}
		return "False"
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
