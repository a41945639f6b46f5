package category

import (
	"strings"

	"github.com/dvloznov/welth/internal/domain"
)

// Resolve matches a free-text category suggestion against the known
// categories for the given transaction type. Matching is a case-insensitive
// exact comparison; there is deliberately no fuzzy or partial matching, since
// a false positive on money-related data is worse than a manual fallback.
//
// Returns the resolved category id, or ("", false) when the input is empty
// or nothing matches. Callers must leave the category field blank on an
// unresolved result, never a stale id.
func Resolve(name string, candidates []domain.Category, txType domain.TransactionType) (string, bool) {
	norm := normalize(name)
	if norm == "" {
		return "", false
	}

	for _, c := range candidates {
		if c.Type != txType {
			continue
		}
		if normalize(c.Name) == norm {
			return c.ID, true
		}
	}

	return "", false
}

// normalize prepares a category name for comparison: uppercase, trimmed.
func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
