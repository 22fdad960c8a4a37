// Package templates provides the template engine and template management
// for reusable notification content.
package templates

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/bissquit/notification-garden/internal/domain"
)

// placeholderRe matches a well-formed {{variable}} placeholder.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// nameRe matches the {type}_{channel}_{purpose} template name convention.
var nameRe = regexp.MustCompile(`^[a-z]+_[a-z_]+_[a-z0-9_]+$`)

// Rendered is the output of rendering a template.
type Rendered struct {
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// Validate checks a template definition: the name convention, the
// declared variable types, the subject requirement for email, and
// balanced placeholder delimiters in subject and content.
func Validate(t *domain.Template) error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown template type %q", ErrValidation, t.Type)
	}
	if !t.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrValidation, t.Channel)
	}

	prefix := fmt.Sprintf("%s_%s_", t.Type, t.Channel)
	if !strings.HasPrefix(t.Name, prefix) || !nameRe.MatchString(t.Name) {
		return fmt.Errorf("%w: template name %q must follow %s{purpose}", ErrValidation, t.Name, prefix)
	}

	if t.Channel == domain.ChannelEmail && strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("%w: subject is required for email templates", ErrValidation)
	}

	if t.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}

	for name, spec := range t.Variables {
		if !spec.Type.Valid() {
			return fmt.Errorf("%w: variable %q has unknown type %q", ErrValidation, name, spec.Type)
		}
	}

	if err := checkDelimiters(t.Content); err != nil {
		return fmt.Errorf("%w: content: %s", ErrValidation, err)
	}
	if err := checkDelimiters(t.Subject); err != nil {
		return fmt.Errorf("%w: subject: %s", ErrValidation, err)
	}

	return nil
}

// checkDelimiters rejects stray or unclosed placeholder delimiters.
// Well-formed placeholders are stripped first; anything that still looks
// like a delimiter is malformed.
func checkDelimiters(s string) error {
	rest := placeholderRe.ReplaceAllString(s, "")
	if i := strings.Index(rest, "{{"); i >= 0 {
		return fmt.Errorf("unclosed placeholder delimiter at offset %d", i)
	}
	if i := strings.Index(rest, "}}"); i >= 0 {
		return fmt.Errorf("unmatched closing delimiter at offset %d", i)
	}
	return nil
}

// Render substitutes variables into the template's subject and content.
// Required variables must be present and every present declared variable
// must match its declared type; both violations return a validation
// error. Placeholders that survive substitution are reported as
// unresolved. Pure function: neither the template nor vars are mutated.
func Render(t *domain.Template, vars map[string]any) (Rendered, error) {
	for name, spec := range t.Variables {
		value, ok := vars[name]
		if !ok {
			if spec.Required {
				return Rendered{}, fmt.Errorf("%w: missing required variable %q", ErrValidation, name)
			}
			continue
		}
		if !matchesType(value, spec.Type) {
			return Rendered{}, fmt.Errorf("%w: variable %q must be of type %s", ErrValidation, name, spec.Type)
		}
	}

	subject := substitute(t.Subject, t.Variables, vars)
	content := substitute(t.Content, t.Variables, vars)

	if m := placeholderRe.FindStringSubmatch(content); m != nil {
		return Rendered{}, fmt.Errorf("%w: %q in content", ErrUnresolvedVariable, m[1])
	}
	if m := placeholderRe.FindStringSubmatch(subject); m != nil {
		return Rendered{}, fmt.Errorf("%w: %q in subject", ErrUnresolvedVariable, m[1])
	}

	return Rendered{Subject: subject, Content: content}, nil
}

// substitute replaces every occurrence of each declared, provided
// variable. Undeclared placeholders are left in place for the caller's
// leftover scan.
func substitute(s string, specs map[string]domain.VariableSpec, vars map[string]any) string {
	if s == "" {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if _, declared := specs[name]; !declared {
			return match
		}
		value, ok := vars[name]
		if !ok {
			return match
		}
		return formatValue(value)
	})
}

// matchesType checks a runtime value against a declared variable type.
func matchesType(value any, t domain.VariableType) bool {
	if value == nil {
		return false
	}

	switch t {
	case domain.VariableString:
		_, ok := value.(string)
		return ok
	case domain.VariableBoolean:
		_, ok := value.(bool)
		return ok
	case domain.VariableNumber:
		if _, ok := value.(json.Number); ok {
			return true
		}
		switch reflect.TypeOf(value).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	case domain.VariableObject:
		return reflect.TypeOf(value).Kind() == reflect.Map
	case domain.VariableArray:
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	}
	return false
}

// formatValue renders a variable value into template output.
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}

	// Objects and arrays serialize as JSON.
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
