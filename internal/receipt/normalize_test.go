package receipt

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/welth/internal/domain"
)

var testNow = time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC)

func TestNormalizeCompleteReceipt(t *testing.T) {
	raw := `{"amount": 42.99, "description": "Coffee beans", "date": "2025-06-10", "category": "Groceries"}`

	draft, warnings, err := Normalize(raw, testNow)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if draft.Amount == nil || draft.Amount.String() != "42.99" {
		t.Errorf("amount = %v, want 42.99", draft.Amount)
	}
	if draft.Date == nil || !draft.Date.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want 2025-06-10", draft.Date)
	}
	if draft.Description != "Coffee beans" {
		t.Errorf("description = %q", draft.Description)
	}
	if draft.CategoryName != "Groceries" {
		t.Errorf("category = %q", draft.CategoryName)
	}
}

func TestNormalizeDegradesGracefully(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantAmount   string // "" means dropped
		wantDesc     string
		wantToday    bool
		wantWarnings int
	}{
		{
			name:         "string amount with bad date and blank description",
			raw:          `{"amount":"12.50","description":"","date":"not-a-date","category":"Transport"}`,
			wantAmount:   "12.5",
			wantDesc:     DefaultDescription,
			wantToday:    true,
			wantWarnings: 1,
		},
		{
			name:         "negative amount dropped",
			raw:          `{"amount": -3.20, "description": "refund", "date": "2025-01-02", "category": ""}`,
			wantAmount:   "",
			wantDesc:     "refund",
			wantWarnings: 1,
		},
		{
			name:         "zero amount dropped",
			raw:          `{"amount": 0, "description": "x", "date": "2025-01-02"}`,
			wantAmount:   "",
			wantDesc:     "x",
			wantWarnings: 1,
		},
		{
			name:         "empty object still yields complete draft",
			raw:          `{}`,
			wantAmount:   "",
			wantDesc:     DefaultDescription,
			wantToday:    true,
			wantWarnings: 2,
		},
		{
			name:         "non-numeric amount string",
			raw:          `{"amount":"twelve","date":"2025-03-03","description":"lunch"}`,
			wantAmount:   "",
			wantDesc:     "lunch",
			wantWarnings: 1,
		},
		{
			name:         "whitespace description substituted",
			raw:          `{"amount": 5, "description": "   ", "date": "2025-03-03"}`,
			wantAmount:   "5",
			wantDesc:     DefaultDescription,
			wantWarnings: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, warnings, err := Normalize(tt.raw, testNow)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if tt.wantAmount == "" {
				if draft.Amount != nil {
					t.Errorf("amount = %v, want dropped", draft.Amount)
				}
			} else if draft.Amount == nil || draft.Amount.String() != tt.wantAmount {
				t.Errorf("amount = %v, want %s", draft.Amount, tt.wantAmount)
			}
			if draft.Description != tt.wantDesc {
				t.Errorf("description = %q, want %q", draft.Description, tt.wantDesc)
			}
			if tt.wantToday {
				want := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
				if draft.Date == nil || !draft.Date.Equal(want) {
					t.Errorf("date = %v, want today (%v)", draft.Date, want)
				}
			}
			if len(warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d of them", warnings, tt.wantWarnings)
			}
		})
	}
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "sorry, I could not read the receipt"},
		{"top-level array", `[{"amount": 5}]`},
		{"empty string", ""},
		{"json null", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Normalize(tt.raw, testNow)
			if !errors.Is(err, domain.ErrMalformedExtraction) {
				t.Errorf("err = %v, want ErrMalformedExtraction", err)
			}
		})
	}
}
