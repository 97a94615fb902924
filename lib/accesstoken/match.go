// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package accesstoken

import (
	"path"
	"strings"
)

// MatchPattern checks whether a value matches a glob pattern using
// Washhouse's hierarchical naming conventions. Actions
// ("machine/reserve"), locations ("campus-3/lr-201"), and machine
// identifiers ("lr-201/washer-04") all use slash-separated segments,
// and grant patterns match against them the same way:
//
//   - Exact match: "lr-201" matches only "lr-201"
//   - Single-segment wildcard: "machine/*" matches "machine/reserve" but not "machine/admin/wipe"
//   - Recursive wildcard: "machine/**" matches "machine/reserve", "machine/admin/wipe", etc.
//   - Universal: "**" matches anything
//   - Interior recursive: "campus-3/**/basement" matches "campus-3/basement", "campus-3/bldg-a/basement", etc.
//   - Character wildcards: "?" matches a single non-slash character
//
// Wildcards in * and ? work in all positions, including around **.
// For example, "lr-*/**/washer-?" matches "lr-2/annex/washer-4". The
// single-segment wildcard "*" does not match "/" — this is the
// standard path.Match behavior and matches the gitignore convention.
// Use "**" to match across hierarchy boundaries.
//
// Returns false for malformed patterns (unmatched brackets, etc.)
// rather than propagating errors — a malformed pattern should never
// grant access.
func MatchPattern(pattern, value string) bool {
	// Universal match.
	if pattern == "**" {
		return true
	}

	// No ** in the pattern — delegate to path.Match which handles
	// single-segment * and ? correctly (not matching /).
	if !strings.Contains(pattern, "**") {
		matched, err := path.Match(pattern, value)
		if err != nil {
			// Malformed pattern — deny.
			return false
		}
		return matched
	}

	// Pattern contains **. Handle the three cases: suffix, prefix, interior.

	// Suffix: "lr-201/**" or "lr-*/**" — match the prefix (with glob
	// wildcards), then anything after.
	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		// ** matches zero additional segments: entire value is the prefix.
		if matchGlob(prefix, value) {
			return true
		}
		// ** matches one or more additional segments.
		return hasMatchingPrefix(prefix, value)
	}

	// Prefix: "**/washer-4" or "**/washer-*" — match anything before,
	// then the suffix (with glob wildcards).
	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		// ** matches zero additional segments: entire value is the suffix.
		if matchGlob(suffix, value) {
			return true
		}
		// ** matches one or more additional segments.
		return hasMatchingSuffix(suffix, value)
	}

	// Interior: "campus-3/**/basement" — split on the first /**, match
	// prefix and suffix independently with glob wildcards.
	separatorIndex := strings.Index(pattern, "/**/")
	if separatorIndex >= 0 {
		prefix := pattern[:separatorIndex]
		suffix := pattern[separatorIndex+4:]

		// Zero-segment case: ** matches nothing, prefix and suffix
		// are adjacent. "campus-3/**/basement" matches
		// "campus-3/basement".
		if matchGlob(prefix+"/"+suffix, value) {
			return true
		}

		// Multi-segment case: prefix matches the start, suffix matches
		// the end, with at least one segment between for ** to consume.
		prefixDepth := strings.Count(prefix, "/") + 1
		suffixDepth := strings.Count(suffix, "/") + 1
		segments := strings.Split(value, "/")

		if len(segments) < prefixDepth+1+suffixDepth {
			return false
		}

		prefixCandidate := strings.Join(segments[:prefixDepth], "/")
		if !matchGlob(prefix, prefixCandidate) {
			return false
		}

		suffixCandidate := strings.Join(segments[len(segments)-suffixDepth:], "/")
		if !matchGlob(suffix, suffixCandidate) {
			return false
		}

		// Verify segments consumed by ** are all non-empty (reject
		// values with consecutive slashes between prefix and suffix).
		for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Multiple ** segments or other complex patterns — not supported.
	// Deny by default.
	return false
}

// matchGlob matches a pattern against a string using path.Match
// semantics (wildcards * and ? do not cross / boundaries). Returns
// false for malformed patterns.
func matchGlob(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	return err == nil && matched
}

// hasMatchingPrefix reports whether the value starts with segments
// that match the given glob pattern, with at least one additional
// segment after the matched portion. The pattern's depth (number of
// /-separated segments) determines how many leading segments of the
// value are tested.
func hasMatchingPrefix(pattern, value string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(value, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[:depth], "/")
	return matchGlob(pattern, candidate)
}

// hasMatchingSuffix reports whether the value ends with segments that
// match the given glob pattern, with at least one additional segment
// before the matched portion.
func hasMatchingSuffix(pattern, value string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(value, "/")
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[len(segments)-depth:], "/")
	return matchGlob(pattern, candidate)
}

// MatchAnyPattern checks whether a value matches any of the given
// glob patterns. Returns true on the first match. Returns false if
// the patterns slice is empty (default-deny).
func MatchAnyPattern(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, value) {
			return true
		}
	}
	return false
}
