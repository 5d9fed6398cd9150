// Package strings normalizes string lists that arrive from token claims,
// environment variables and policy files.
package strings

import "strings"

// NormalizeList trims every value and drops empties and repeats, keeping the
// first occurrence. When fold is set, values are lowercased first, so "PDF"
// and "pdf" collapse into one entry.
func NormalizeList(values []string, fold bool) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma-separated value and normalizes the parts. An empty
// input yields nil.
func SplitList(s string, fold bool) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := NormalizeList(strings.Split(s, ","), fold)
	if len(out) == 0 {
		return nil
	}
	return out
}
