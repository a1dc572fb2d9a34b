package prompts

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DomainContext carries the structured facts injected into a prompt, usually
// a classifier's output. Keys are never validated for completeness.
type DomainContext map[string]any

// String resolves key to display text, falling back to def when the key is
// missing, nil or blank.
func (c DomainContext) String(key, def string) string {
	v, ok := c[key]
	if !ok {
		return def
	}
	s := formatScalar(v)
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Params renders a nested map under key as "k: v" pairs joined by ", " in
// sorted key order. Returns "" when the key is missing or not a map.
func (c DomainContext) Params(key string) string {
	m, ok := c[key].(map[string]any)
	if !ok || len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+formatScalar(m[k]))
	}
	return strings.Join(parts, ", ")
}

// ParseConfidence reads a percentage such as 87.5, "87.5" or "87.5%".
// Anything unparsable or non-finite yields 0.
func ParseConfidence(v any) float64 {
	switch c := v.(type) {
	case float64:
		return finite(c)
	case float32:
		return finite(float64(c))
	case int:
		return float64(c)
	case int64:
		return float64(c)
	case json.Number:
		f, err := c.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(c), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return finite(f)
	default:
		return 0
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func formatScalar(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(c), 'f', -1, 32)
	default:
		return fmt.Sprint(c)
	}
}
