package reconcile

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/welth/internal/category"
	"github.com/dvloznov/welth/internal/domain"
)

// State is the scan state of a form session.
type State string

const (
	// StateIdle means no scan is in flight.
	StateIdle State = "IDLE"
	// StateScanning means an extraction request is outstanding.
	StateScanning State = "SCANNING"
	// StateApplyingDraft means a successful draft is being merged into the
	// form fields. Only ever observable from inside the session lock.
	StateApplyingDraft State = "APPLYING_DRAFT"
)

// Form mirrors a transaction's fields before submission.
type Form struct {
	Type              domain.TransactionType
	Amount            *decimal.Decimal
	Description       string
	Date              *time.Time
	AccountID         string
	CategoryID        string
	IsRecurring       bool
	RecurringInterval *domain.RecurringInterval
}

// Session owns one in-progress transaction form and the state machine that
// merges receipt drafts into it. All mutations go through the session lock,
// so field writes from a single draft apply in order and never interleave
// with another draft's writes or with the user's own edits.
type Session struct {
	ID                string
	UserID            string
	EditTransactionID string // non-empty in edit mode
	CreatedAt         time.Time

	mu         sync.Mutex
	state      State
	form       Form
	advisories []string
	typeSeen   bool // baseline type observed; the clear-category rule only fires after this
	closed     bool
}

// NewSession creates a session initialized from defaults or, in edit mode,
// from an existing transaction's fields. A non-empty initial type counts as
// the baseline: switching away from it later is a genuine change, but the
// initial observation itself never clears anything.
func NewSession(userID string, form Form) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now(),
		state:     StateIdle,
		form:      form,
		typeSeen:  form.Type != "",
	}
}

// State returns the current scan state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Form returns a snapshot of the form fields.
func (s *Session) Form() Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// Advisories returns a copy of the accumulated user-facing notices.
func (s *Session) Advisories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.advisories))
	copy(out, s.advisories)
	return out
}

// BeginScan moves the session from Idle to Scanning. It returns false when a
// scan is already in flight or being applied, or the session is closed: the
// second scan request is dropped, not queued, so two drafts can never
// interleave their field writes.
func (s *Session) BeginScan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateIdle {
		return false
	}
	s.state = StateScanning
	return true
}

// FailScan ends an outstanding scan without a draft. The session returns to
// Idle and the user is told to enter the details manually.
func (s *Session) FailScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScanning {
		return
	}
	s.state = StateIdle
	s.advisories = append(s.advisories, "could not read the receipt, please enter the details manually")
}

// ApplyDraft merges a receipt draft into the form. It returns false when the
// draft is dropped: the session is closed (the user navigated away before the
// result arrived), no scan is outstanding, or the draft is empty.
//
// Mutation order is fixed: amount, date, description, then type=EXPENSE, and
// only then category resolution - the candidate filter is type-scoped, so the
// type must be committed first. The whole merge runs as one dependent
// mutation under the session lock; there is no timing-based workaround.
// warnings are normalizer advisories surfaced alongside the field writes.
func (s *Session) ApplyDraft(draft *domain.ReceiptDraft, categories []domain.Category, warnings []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != StateScanning {
		return false
	}
	if draft.Empty() {
		s.state = StateIdle
		s.advisories = append(s.advisories, "could not read the receipt, please enter the details manually")
		return false
	}

	s.state = StateApplyingDraft
	// Partial field writes are each independently valid and stay in place on
	// failure; only the in-flight state must always be cleared.
	defer func() {
		if r := recover(); r != nil {
			s.advisories = append(s.advisories, "could not apply the scanned receipt, please enter the details manually")
		}
		s.state = StateIdle
	}()

	s.advisories = append(s.advisories, warnings...)

	if draft.Amount != nil && draft.Amount.IsPositive() {
		amount := *draft.Amount
		s.form.Amount = &amount
	}

	if draft.Date != nil {
		date := *draft.Date
		s.form.Date = &date
	}

	if draft.Description != "" {
		s.form.Description = draft.Description
	}

	// Receipts represent spending. The type write is part of the same
	// logical unit as the category write below, so the user-edit rule in
	// SetType never sees it.
	s.form.Type = domain.TypeExpense
	s.typeSeen = true

	if id, ok := category.Resolve(draft.CategoryName, categories, s.form.Type); ok {
		s.form.CategoryID = id
	} else {
		// Never leave a previous, possibly type-mismatched id in place.
		s.form.CategoryID = ""
		if draft.CategoryName != "" {
			s.advisories = append(s.advisories, "no matching category for \""+draft.CategoryName+"\", please pick one")
		}
	}

	return true
}

// SetType records a user-driven change of the transaction type. A genuine
// change clears the category field, since a category valid for one type is
// meaningless for the other. The first observed type is the baseline and
// clears nothing. Draft application sets the type directly and is not routed
// through here.
func (s *Session) SetType(t domain.TransactionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setTypeLocked(t)
}

func (s *Session) setTypeLocked(t domain.TransactionType) {
	if s.typeSeen && s.form.Type != t {
		s.form.CategoryID = ""
	}
	s.form.Type = t
	s.typeSeen = true
}

// FormPatch carries user edits to apply to the form. Nil fields are left
// untouched. Type changes route through the clear-category rule.
type FormPatch struct {
	Type              *domain.TransactionType
	Amount            *decimal.Decimal
	Description       *string
	Date              *time.Time
	AccountID         *string
	CategoryID        *string
	IsRecurring       *bool
	RecurringInterval *domain.RecurringInterval
}

// Update applies user edits to the form as one unit under the session lock,
// so a draft landing mid-patch can never interleave between the type change
// and the other field writes.
func (s *Session) Update(patch FormPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if patch.Type != nil {
		s.setTypeLocked(*patch.Type)
	}
	if patch.Amount != nil {
		s.form.Amount = patch.Amount
	}
	if patch.Description != nil {
		s.form.Description = *patch.Description
	}
	if patch.Date != nil {
		s.form.Date = patch.Date
	}
	if patch.AccountID != nil {
		s.form.AccountID = *patch.AccountID
	}
	if patch.CategoryID != nil {
		s.form.CategoryID = *patch.CategoryID
	}
	if patch.IsRecurring != nil {
		s.form.IsRecurring = *patch.IsRecurring
	}
	if patch.RecurringInterval != nil {
		s.form.RecurringInterval = patch.RecurringInterval
	}
}

// Close marks the session dead. A late-arriving scan result for a closed
// session is discarded without touching the form.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
