// Package manifest checks an Info.plist against the manifest rule table and
// decodes the privacy manifest that ships next to it.
package manifest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"howett.net/plist"
)

// Document is a decoded property list with nested dictionaries flattened to
// dotted key paths. Dictionary nodes stay addressable by their own path.
type Document struct {
	flat map[string]any
}

// Decode parses XML, binary or OpenStep property list data. The root must be
// a dictionary.
func Decode(data []byte) (*Document, error) {
	var root any
	if _, err := plist.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("not a valid property list: %w", err)
	}
	dict, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("property list root is %s, expected a dictionary", kindOf(root))
	}

	doc := &Document{flat: make(map[string]any)}
	doc.flatten("", dict)
	return doc, nil
}

func (d *Document) flatten(prefix string, m map[string]any) {
	for k, v := range m {
		full := prefix + k
		d.flat[full] = v
		if sub, ok := v.(map[string]any); ok {
			d.flatten(full+".", sub)
		}
	}
}

// Lookup returns the value at a dotted key path.
func (d *Document) Lookup(key string) (any, bool) {
	v, ok := d.flat[key]
	return v, ok
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "YES"
		}
		return "NO"
	case uint64:
		return strconv.FormatUint(t, 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringValue(e)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case []byte:
		return len(t) == 0
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "true", "1":
			return true
		}
		return false
	case uint64:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	return false
}

// members lists the entries of an array value, or the enabled keys of a
// dictionary value in sorted order.
func members(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, stringValue(e))
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(t))
		for k, e := range t {
			if truthy(e) {
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out
	case string:
		return []string{t}
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case []any:
		return "an array"
	case string:
		return "a string"
	case nil:
		return "empty"
	default:
		return fmt.Sprintf("%T", v)
	}
}
