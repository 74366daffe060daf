package notes

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// QuotaKeeper gates note creation against the account plan and keeps the
// account's note count in step with creates and deletes
type QuotaKeeper interface {
	CheckNoteQuota(accountID int64) error
	IncrementNoteCount(accountID int64) error
	DecrementNoteCount(accountID int64) error
}

// Service implements note operations over PostgreSQL
type Service struct {
	db     *sql.DB
	tags   *TagStore
	quotas QuotaKeeper
}

// NewService creates a note service
func NewService(db *sql.DB, tags *TagStore, quotas QuotaKeeper) *Service {
	return &Service{db: db, tags: tags, quotas: quotas}
}

const noteColumns = `n.id, n.account_id, n.owner_id, n.title, n.description, n.is_deleted, n.created_at, n.updated_at`

func scanNote(scanner interface{ Scan(...interface{}) error }) (*Note, error) {
	note := &Note{}
	err := scanner.Scan(
		&note.ID, &note.AccountID, &note.OwnerID,
		&note.Title, &note.Description, &note.IsDeleted,
		&note.CreatedAt, &note.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}
	return note, nil
}

// scopeClause appends the tenant and owner conditions shared by every note
// lookup. Owner scoping and tenant scoping use the same mechanism, so a
// note outside either is indistinguishable from one that does not exist.
func scopeClause(b *strings.Builder, args *[]interface{}, scope Scope) {
	*args = append(*args, scope.AccountID)
	fmt.Fprintf(b, " AND n.account_id = $%d", len(*args))
	if scope.OwnerID != nil {
		*args = append(*args, *scope.OwnerID)
		fmt.Fprintf(b, " AND n.owner_id = $%d", len(*args))
	}
}

// Create validates the input, enforces the plan quota, resolves tags, and
// persists the note. The quota check and the count increment are separate
// statements; two concurrent creates can both pass the check at the limit
// boundary.
func (s *Service) Create(accountID, ownerID int64, input CreateInput) (*Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if err := s.quotas.CheckNoteQuota(accountID); err != nil {
		return nil, err
	}

	tags, err := s.tags.FindOrCreate(accountID, input.Tags)
	if err != nil {
		return nil, err
	}

	note := &Note{
		AccountID:   accountID,
		OwnerID:     ownerID,
		Title:       input.Title,
		Description: input.Description,
		Tags:        tags,
	}
	err = s.db.QueryRow(`
		INSERT INTO notes (account_id, owner_id, title, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		accountID, ownerID, note.Title, note.Description,
	).Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	if err := s.attachTags(note.ID, tags); err != nil {
		return nil, err
	}

	if err := s.quotas.IncrementNoteCount(accountID); err != nil {
		return nil, fmt.Errorf("failed to update note count: %w", err)
	}

	return note, nil
}

func (s *Service) attachTags(noteID int64, tags []Tag) error {
	for _, tag := range tags {
		_, err := s.db.Exec(`
			INSERT INTO note_tags (note_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			noteID, tag.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to attach tag %q: %w", tag.Name, err)
		}
	}
	return nil
}

// Get loads a single note visible through the scope
func (s *Service) Get(scope Scope, noteID int64) (*Note, error) {
	query := strings.Builder{}
	fmt.Fprintf(&query, "SELECT %s FROM notes n WHERE n.id = $1 AND n.is_deleted = false", noteColumns)
	args := []interface{}{noteID}
	scopeClause(&query, &args, scope)

	note, err := scanNote(s.db.QueryRow(query.String(), args...))
	if err != nil {
		return nil, err
	}

	tagsByNote, err := s.tags.ListForNotes([]int64{note.ID})
	if err != nil {
		return nil, err
	}
	note.Tags = tagsByNote[note.ID]
	if note.Tags == nil {
		note.Tags = []Tag{}
	}
	return note, nil
}

// List returns a page of scoped notes. Search uses weighted full-text
// matching with titles ranked above descriptions. A tag filter whose names
// resolve to no tags matches nothing rather than being ignored.
func (s *Service) List(scope Scope, req ListRequest) (*List, error) {
	req.Normalize()

	where := strings.Builder{}
	where.WriteString(" WHERE n.is_deleted = false")
	args := make([]interface{}, 0, 6)
	scopeClause(&where, &args, scope)

	orderBy := " ORDER BY n.created_at DESC"
	if search := strings.TrimSpace(req.Search); search != "" {
		args = append(args, search)
		fmt.Fprintf(&where, " AND n.search_vector @@ websearch_to_tsquery('english', $%d)", len(args))
		orderBy = fmt.Sprintf(" ORDER BY ts_rank(n.search_vector, websearch_to_tsquery('english', $%d)) DESC, n.created_at DESC", len(args))
	}

	if len(req.Tags) > 0 {
		tagIDs, err := s.tags.Resolve(scope.AccountID, req.Tags)
		if err != nil {
			return nil, err
		}
		if len(tagIDs) == 0 {
			// None of the requested tags exist for this tenant
			where.WriteString(" AND 1 = 0")
		} else {
			args = append(args, pq.Array(tagIDs))
			fmt.Fprintf(&where, " AND n.id IN (SELECT note_id FROM note_tags WHERE tag_id = ANY($%d))", len(args))
		}
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM notes n" + where.String()
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count notes: %w", err)
	}

	pageArgs := append(args, req.Limit, req.Offset())
	pageQuery := fmt.Sprintf("SELECT %s FROM notes n%s%s LIMIT $%d OFFSET $%d",
		noteColumns, where.String(), orderBy, len(pageArgs)-1, len(pageArgs))

	rows, err := s.db.Query(pageQuery, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	result := &List{
		Notes:      []*Note{},
		TotalCount: total,
		Page:       req.Page,
		Limit:      req.Limit,
	}
	noteIDs := make([]int64, 0, req.Limit)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		note.Tags = []Tag{}
		result.Notes = append(result.Notes, note)
		noteIDs = append(noteIDs, note.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	tagsByNote, err := s.tags.ListForNotes(noteIDs)
	if err != nil {
		return nil, err
	}
	for _, note := range result.Notes {
		if tags, ok := tagsByNote[note.ID]; ok {
			note.Tags = tags
		}
	}

	return result, nil
}

// Update applies a partial update to a scoped note. Provided fields replace
// the stored values; a provided tag list replaces the full tag set.
func (s *Service) Update(scope Scope, noteID int64, input UpdateInput) (*Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.Empty() {
		return s.Get(scope, noteID)
	}

	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)
	if input.Title != nil {
		args = append(args, *input.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if input.Description != nil {
		args = append(args, *input.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = NOW()")
		query := strings.Builder{}
		args = append(args, noteID)
		fmt.Fprintf(&query, "UPDATE notes n SET %s WHERE n.id = $%d AND n.is_deleted = false",
			strings.Join(sets, ", "), len(args))
		scopeClause(&query, &args, scope)

		result, err := s.db.Exec(query.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update note: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to update note: %w", err)
		}
		if affected == 0 {
			return nil, ErrNoteNotFound
		}
	} else {
		// Tags-only update still must respect the scope
		if _, err := s.Get(scope, noteID); err != nil {
			return nil, err
		}
	}

	if input.Tags != nil {
		tags, err := s.tags.FindOrCreate(scope.AccountID, *input.Tags)
		if err != nil {
			return nil, err
		}
		if _, err := s.db.Exec(`DELETE FROM note_tags WHERE note_id = $1`, noteID); err != nil {
			return nil, fmt.Errorf("failed to replace note tags: %w", err)
		}
		if err := s.attachTags(noteID, tags); err != nil {
			return nil, err
		}
	}

	return s.Get(scope, noteID)
}

// Delete soft-deletes a scoped note and releases its quota slot
func (s *Service) Delete(scope Scope, noteID int64) error {
	query := strings.Builder{}
	args := []interface{}{noteID}
	query.WriteString("UPDATE notes n SET is_deleted = true, updated_at = NOW() WHERE n.id = $1 AND n.is_deleted = false")
	scopeClause(&query, &args, scope)

	result, err := s.db.Exec(query.String(), args...)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if affected == 0 {
		return ErrNoteNotFound
	}

	if err := s.quotas.DecrementNoteCount(scope.AccountID); err != nil {
		return fmt.Errorf("failed to update note count: %w", err)
	}
	return nil
}
