package accounts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Plan represents a subscription plan tier
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

const (
	// FreePlanNoteLimit is the note cap for free accounts
	FreePlanNoteLimit = 10
	// UnlimitedNotes is the quota sentinel for pro accounts
	UnlimitedNotes = -1
)

// Account represents a tenant
type Account struct {
	ID                    int64     `json:"id"`
	Name                  string    `json:"name"`
	Slug                  string    `json:"slug"`
	Plan                  Plan      `json:"plan"`
	NoteLimit             int       `json:"note_limit"`
	NoteCount             int       `json:"note_count"`
	IsActive              bool      `json:"is_active"`
	IsDeleted             bool      `json:"is_deleted"`
	CurrentSubscriptionID *int64    `json:"current_subscription_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// CanCreateNote reports whether the account may create another note.
// Pro accounts are unlimited; free accounts are capped by NoteLimit.
func (a *Account) CanCreateNote() bool {
	if a.Plan == PlanPro || a.NoteLimit == UnlimitedNotes {
		return true
	}
	return a.NoteCount < a.NoteLimit
}

var (
	// ErrAccountNotFound is returned when no matching account exists
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountSuspended is returned for operations on inactive accounts
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountDeleted is returned for operations on deleted accounts
	ErrAccountDeleted = errors.New("account deleted")
	// ErrAlreadyPro is returned when upgrading an account already on pro
	ErrAlreadyPro = errors.New("account already on pro plan")
)

// QuotaExceededError is returned when the note quota gate rejects a create.
// It carries the structured upgrade hint surfaced to clients.
type QuotaExceededError struct {
	Plan    Plan
	Current int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("note quota exceeded: %d of %d on %s plan", e.Current, e.Limit, e.Plan)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// Slugify normalizes an account name into a slug: lowercase, spaces to
// hyphens, everything outside [a-z0-9-] dropped
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "account"
	}
	return slug
}
