// Package slug derives the human-readable identifiers used in profile URLs,
// e.g. "Ana Diaz" → "ana-diaz".
//
// Everything here is pure: no I/O, no state. The resolver and the backfill
// job both depend on these functions producing the same output for the same
// name fields, so any change to Normalize changes which stored records a
// given URL resolves to.
package slug

import (
	"strings"
	"unicode"
)

// Normalize turns free text into slug form.
//
// Steps, in order:
//  1. drop every character that is not an ASCII letter, digit, whitespace or '-'
//  2. lowercase
//  3. replace each run of whitespace with a single '-'
//  4. collapse runs of '-'
//  5. trim leading and trailing '-'
//
// An empty result means the text holds no slug material.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	// pendingDash is set while we are inside a run of whitespace or dashes.
	// The dash is only emitted once the next kept character shows up, which
	// handles both collapsing and trailing trims in one pass.
	pendingDash := false
	for _, r := range text {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		default:
			// stripped; does not break a dash run
		}
	}
	return b.String()
}

// FromName joins first and last name with a space and normalizes the result.
// Blank parts are skipped.
func FromName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	return Normalize(strings.TrimSpace(first + " " + last))
}

// Derive returns the slug for a set of name fields. The first rule that
// yields a non-empty slug wins:
//
//  1. first + last name, when either is present
//  2. the full name
//  3. the full name split on whitespace: first token as first name, the
//     rest as last name
//
// Derive returns "" when no rule produces anything.
func Derive(first, last, full string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	full = strings.TrimSpace(full)

	if first != "" || last != "" {
		if s := FromName(first, last); s != "" {
			return s
		}
	}
	if full == "" {
		return ""
	}
	if s := Normalize(full); s != "" {
		return s
	}
	return fromSplit(full)
}

// fromSplit is rule 3 of Derive. With the current Normalize it only matters
// for names whose first token is made of stripped characters, but it keeps
// records written by older clients resolvable.
func fromSplit(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return ""
	}
	return FromName(parts[0], strings.Join(parts[1:], " "))
}

// Names is the subset of a profile Candidates needs.
type Names struct {
	Slug      string
	FirstName string
	LastName  string
	FullName  string
}

// Candidates lists every slug a stored record can be matched by, in the
// order the resolver checks them:
//
//  1. the stored slug (lowercased, trimmed)
//  2. first + last name
//  3. full name
//  4. the split full name, only when first and last name are both blank
//
// Empty and repeated candidates are dropped.
func Candidates(n Names) []string {
	out := make([]string, 0, 4)
	add := func(s string) {
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	add(strings.ToLower(strings.TrimSpace(n.Slug)))

	first := strings.TrimSpace(n.FirstName)
	last := strings.TrimSpace(n.LastName)
	if first != "" || last != "" {
		add(FromName(first, last))
	}

	full := strings.TrimSpace(n.FullName)
	if full != "" {
		add(Normalize(full))
		if first == "" && last == "" {
			add(fromSplit(full))
		}
	}
	return out
}

// Matches reports whether target equals any candidate of n.
func Matches(n Names, target string) bool {
	for _, c := range Candidates(n) {
		if c == target {
			return true
		}
	}
	return false
}
