package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax.
func ExpandTilde(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}

	return path
}

// MaxPatternSize caps how many names a single range pattern may expand to.
const MaxPatternSize = 4096

// rangeRe matches prefix{start..end}suffix.
var rangeRe = regexp.MustCompile(`^([^{}]*)\{(\d+)\.\.(\d+)\}([^{}]*)$`)

// ExpandPattern expands a single numeric range pattern. "gpu{25..27}"
// becomes gpu25, gpu26, gpu27. The start literal sets the zero-padding
// width, so "node{01..03}" gives node01..node03. Entries without braces
// are returned as-is.
func ExpandPattern(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "{}") {
		return []string{pattern}, nil
	}

	m := rangeRe.FindStringSubmatch(pattern)
	if m == nil {
		return nil, fmt.Errorf("invalid pattern %q: expected name{start..end}", pattern)
	}
	prefix, startStr, endStr, suffix := m[1], m[2], m[3], m[4]

	start, err := strconv.Atoi(startStr)
	if err != nil {
		return nil, fmt.Errorf("invalid start in pattern %q: %w", pattern, err)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return nil, fmt.Errorf("invalid end in pattern %q: %w", pattern, err)
	}
	if start > end {
		return nil, fmt.Errorf("pattern %q: start (%d) must be <= end (%d)", pattern, start, end)
	}
	if end-start >= MaxPatternSize {
		return nil, fmt.Errorf("pattern %q expands to more than %d names", pattern, MaxPatternSize)
	}

	width := len(startStr)
	names := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		names = append(names, fmt.Sprintf("%s%0*d%s", prefix, width, i, suffix))
	}
	return names, nil
}

// ExpandTargets expands every entry in patterns, preserving order.
func ExpandTargets(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		names, err := ExpandPattern(p)
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

// Qualify appends domain to name when name has no dot and domain is set.
func Qualify(name, domain string) string {
	domain = strings.TrimPrefix(domain, ".")
	if domain == "" || strings.Contains(name, ".") {
		return name
	}
	return name + "." + domain
}
