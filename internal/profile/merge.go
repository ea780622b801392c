package profile

import (
	"fmt"
	"strconv"
	"strings"
)

// Clean keeps only the useful values of an extraction result: nulls, empty
// strings, "null" and false are dropped, other scalars are stringified.
func Clean(partial map[string]any) map[string]string {
	out := make(map[string]string, len(partial))
	for k, v := range partial {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		var s string
		switch val := v.(type) {
		case nil:
			continue
		case bool:
			if !val {
				continue
			}
			s = "true"
		case string:
			s = strings.TrimSpace(val)
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			s = strings.TrimSpace(fmt.Sprint(val))
		}
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		out[key] = s
	}
	return out
}

// Merge overlays the useful values of partial onto existing. It never removes
// a known value and reports whether anything changed.
func Merge(existing map[string]string, partial map[string]any) (map[string]string, bool) {
	merged := make(map[string]string, len(existing)+len(partial))
	for k, v := range existing {
		merged[k] = v
	}
	changed := false
	for k, v := range Clean(partial) {
		if cur, ok := merged[k]; ok && cur == v {
			continue
		}
		merged[k] = v
		changed = true
	}
	return merged, changed
}
