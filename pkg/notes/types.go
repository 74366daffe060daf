package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxTitleLength bounds note titles
	MaxTitleLength = 255
	// MaxDescriptionLength bounds note bodies
	MaxDescriptionLength = 50000
	// MaxTagsPerNote bounds the tag list on a single note
	MaxTagsPerNote = 20

	// DefaultPageSize is used when the caller does not specify a limit
	DefaultPageSize = 20
	// MaxPageSize caps caller-supplied limits
	MaxPageSize = 100
)

var (
	// ErrNoteNotFound is returned when no note matches the scoped lookup.
	// Notes outside the caller's scope surface the same way as notes that
	// never existed.
	ErrNoteNotFound = errors.New("note not found")
)

// ValidationError carries a field-level input rejection
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a field validation error
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Scope bounds a note query to a tenant and optionally to an owning user
type Scope struct {
	AccountID int64
	OwnerID   *int64
}

// Tag is an account-local label. Names are stored normalized and are unique
// within the account.
type Tag struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"-"`
	Name      string `json:"name"`
}

// NormalizeTagName lowercases and trims a tag name. An empty result means
// the name was blank and should be dropped.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeTagNames normalizes a tag list, dropping blanks and duplicates
// while preserving first-seen order
func NormalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		normalized := NormalizeTagName(name)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// Note is a tenant-scoped document owned by the user who created it
type Note struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	OwnerID     int64     `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []Tag     `json:"tags"`
	IsDeleted   bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput is the payload for creating a note
type CreateInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Validate trims and bounds the input in place
func (in *CreateInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if len(in.Title) > MaxTitleLength {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLength)}
	}
	if len(in.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength)}
	}
	if len(in.Tags) > MaxTagsPerNote {
		return &ValidationError{Field: "tags", Message: fmt.Sprintf("at most %d tags per note", MaxTagsPerNote)}
	}
	return nil
}

// UpdateInput is the payload for a partial note update. Nil fields are left
// unchanged; a non-nil Tags replaces the full tag set.
type UpdateInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

// Validate trims and bounds the provided fields
func (in *UpdateInput) Validate() error {
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		if trimmed == "" {
			return &ValidationError{Field: "title", Message: "title cannot be empty"}
		}
		if len(trimmed) > MaxTitleLength {
			return &ValidationError{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLength)}
		}
		in.Title = &trimmed
	}
	if in.Description != nil && len(*in.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength)}
	}
	if in.Tags != nil && len(*in.Tags) > MaxTagsPerNote {
		return &ValidationError{Field: "tags", Message: fmt.Sprintf("at most %d tags per note", MaxTagsPerNote)}
	}
	return nil
}

// Empty reports whether the update changes nothing
func (in *UpdateInput) Empty() bool {
	return in.Title == nil && in.Description == nil && in.Tags == nil
}

// ListRequest is the query surface for listing notes
type ListRequest struct {
	Search string
	Tags   []string
	Page   int
	Limit  int
}

// Normalize applies pagination defaults and caps
func (r *ListRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = DefaultPageSize
	}
	if r.Limit > MaxPageSize {
		r.Limit = MaxPageSize
	}
}

// Offset converts 1-indexed pagination to a row offset
func (r *ListRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

// List is a paginated page of notes
type List struct {
	Notes      []*Note `json:"notes"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
}
