package domain

import "strings"

// NaturalKeyOf normalizes a name+university pair into a NaturalKey.
// Matching is case-insensitive and ignores surrounding whitespace.
func NaturalKeyOf(name, university string) NaturalKey {
	return NaturalKey{Name: normalizeKeyPart(name), University: normalizeKeyPart(university)}
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
