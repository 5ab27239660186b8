// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package suspect implements the advisory suspicious-input filter.
//
// The filter is pattern matching over raw form fields, nothing more. It is
// not a security boundary: persistence uses parameterized queries and
// responses are JSON-encoded regardless of what the filter does.
package suspect

import "regexp"

// pattern pairs a name (used in audit entries) with its regexp.
type pattern struct {
	name string
	re   *regexp.Regexp
}

// patterns is the fixed, ordered rule list. Matching is case-insensitive
// and the first hit wins.
var patterns = []pattern{
	{name: "script_tag", re: regexp.MustCompile(`(?i)<\s*script\b`)},
	{name: "union_select", re: regexp.MustCompile(`(?i)union\s+select`)},
	{name: "sql_meta", re: regexp.MustCompile(`(?i)(--|;|\bdrop\b|\bdelete\b)`)},
}

// Match reports the name of the first pattern the value trips, or "" if the
// value looks clean.
func Match(value string) string {
	for _, p := range patterns {
		if p.re.MatchString(value) {
			return p.name
		}
	}
	return ""
}

// MatchFields checks the named fields in order and returns the field name
// and pattern name of the first hit. Returns ("", "") when every field is
// clean. Fields are checked in the order given so audit entries are stable.
func MatchFields(fields [][2]string) (field, patternName string) {
	for _, f := range fields {
		if name := Match(f[1]); name != "" {
			return f[0], name
		}
	}
	return "", ""
}
