package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseFloatPairs parses "key=value,key=value" into a map, e.g. "covid_crash=-0.3,bull_run_10=0.1".
// Returns nil for empty input.
func ParseFloatPairs(s string) (map[string]float64, error) {
	items := ParseCSV(s)
	if items == nil {
		return nil, nil
	}

	out := make(map[string]float64, len(items))
	for _, item := range items {
		key, raw, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid pair %q: expected key=value", item)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}
