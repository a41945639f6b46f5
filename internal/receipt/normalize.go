package receipt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/domain"
)

// Normalize validates and coerces raw model output into a complete
// ReceiptDraft. It fails only when the text is not a single JSON object;
// every field-level problem degrades to a default plus an advisory warning,
// since a partial autofill is more useful than an all-or-nothing failure.
// now supplies the caller's local calendar date for the date fallback.
func Normalize(rawText string, now time.Time) (*domain.ReceiptDraft, []string, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(rawText), &obj); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrMalformedExtraction, err)
	}
	// JSON null unmarshals into a nil map without error; that is not an
	// object and must not become a defaulted draft.
	if obj == nil {
		return nil, nil, fmt.Errorf("%w: response is not a JSON object", domain.ErrMalformedExtraction)
	}

	var warnings []string
	draft := &domain.ReceiptDraft{}

	if amount, ok := coerceAmount(obj["amount"]); ok {
		draft.Amount = &amount
	} else {
		warnings = append(warnings, "could not auto-fill amount")
	}

	if date, ok := coerceDate(obj["date"]); ok {
		draft.Date = &date
	} else {
		d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		draft.Date = &d
		warnings = append(warnings, "receipt date unreadable, defaulted to today")
	}

	draft.Description = coerceString(obj["description"])
	if draft.Description == "" {
		draft.Description = DefaultDescription
	}

	draft.CategoryName = coerceString(obj["category"])

	return draft, warnings, nil
}

// coerceAmount accepts a JSON number or a numeric string and returns a
// positive decimal. Anything else - missing, zero, negative, non-numeric -
// is reported as unusable rather than failing the whole draft.
func coerceAmount(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case float64:
		d := decimal.NewFromFloat(val)
		return d, d.IsPositive()
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Zero, false
		}
		return d, d.IsPositive()
	default:
		return decimal.Zero, false
	}
}

// coerceDate accepts only the literal YYYY-MM-DD pattern.
func coerceDate(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if len(s) != len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func coerceString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
