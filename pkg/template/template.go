// Package template resolves dot paths and renders {{path}} placeholders in node configuration.
package template

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/oliveagle/jsonpath"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolve looks up a path in data. Dot paths ("blocks.node-1.items.0.price")
// are walked segment by segment: a segment is a key on maps and an index on
// slices, so numeric node ids resolve like any other key. Paths starting with
// "$" are JSONPath expressions. Missing keys and out of range indices report
// false.
func Resolve(data any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	if strings.HasPrefix(path, "$") {
		value, err := jsonpath.JsonPathLookup(data, path)
		if err != nil {
			return nil, false
		}

		return value, true
	}

	current := data

	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}

		next, ok := step(current, segment)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func step(current any, segment string) (any, bool) {
	switch typed := current.(type) {
	case map[string]any:
		value, ok := typed[segment]

		return value, ok
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(typed) {
			return nil, false
		}

		return typed[index], true
	}

	// Typed maps and slices, e.g. map[string]string headers.
	value := reflect.ValueOf(current)

	switch value.Kind() {
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return nil, false
		}

		item := value.MapIndex(reflect.ValueOf(segment).Convert(value.Type().Key()))
		if !item.IsValid() {
			return nil, false
		}

		return item.Interface(), true
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= value.Len() {
			return nil, false
		}

		return value.Index(index).Interface(), true
	default:
		return nil, false
	}
}

// Render walks value and substitutes placeholders in every string against data.
// A string made of a single placeholder takes the referenced value with its
// type; placeholders embedded in text are formatted. Unresolved placeholders
// are left untouched.
func Render(value any, data map[string]any) any {
	switch typed := value.(type) {
	case string:
		return renderString(typed, data)
	case map[string]any:
		rendered := make(map[string]any, len(typed))
		for key, item := range typed {
			rendered[key] = Render(item, data)
		}

		return rendered
	case []any:
		rendered := make([]any, len(typed))
		for i, item := range typed {
			rendered[i] = Render(item, data)
		}

		return rendered
	default:
		return value
	}
}

// RenderConfig renders every value of a node configuration.
func RenderConfig(config map[string]any, data map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}

	rendered, _ := Render(config, data).(map[string]any)

	return rendered
}

// NeedsRendering reports whether s contains a placeholder.
func NeedsRendering(s string) bool {
	return placeholder.MatchString(s)
}

func renderString(input string, data map[string]any) any {
	matches := placeholder.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(input) {
		if value, ok := Resolve(data, input[matches[0][2]:matches[0][3]]); ok {
			return value
		}

		return input
	}

	return placeholder.ReplaceAllStringFunc(input, func(token string) string {
		path := placeholder.FindStringSubmatch(token)[1]

		value, ok := Resolve(data, path)
		if !ok {
			return token
		}

		return Stringify(value)
	})
}

// Stringify formats a resolved value for embedding in text. Maps and slices
// are encoded as JSON.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case map[string]any, []any:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}

		return string(data)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
