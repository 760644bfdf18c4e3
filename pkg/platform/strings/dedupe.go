// Package strings provides string list normalization used when parsing
// caller-supplied entity type lists.
package strings

import (
	"strings"
)

// DedupeAndTrimUpper trims and uppercases each element, then drops empties
// and duplicates while preserving order. Entity type names ("us_ssn",
// " US_SSN") compare case-insensitively.
//
//	DedupeAndTrimUpper([]string{" person", "PERSON", "email_address"})
//	// Returns: []string{"PERSON", "EMAIL_ADDRESS"}
func DedupeAndTrimUpper(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		folded := strings.ToUpper(strings.TrimSpace(v))
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; !ok {
			seen[folded] = struct{}{}
			result = append(result, folded)
		}
	}
	return result
}

// ToSet returns the elements as a membership set.
func ToSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
