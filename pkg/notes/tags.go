package notes

import (
	"database/sql"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lib/pq"
)

const (
	tagCacheSize = 4096
	tagCacheTTL  = 10 * time.Minute
)

// TagStore resolves tag names to account-local tag rows. Resolved ids are
// held in an expiring LRU: find-or-create is idempotent, so a stale entry
// can only skip a round trip, never produce a wrong id.
type TagStore struct {
	db    *sql.DB
	cache *lru.LRU[string, int64]
}

// NewTagStore creates a tag store with the id cache
func NewTagStore(db *sql.DB) *TagStore {
	return &TagStore{
		db:    db,
		cache: lru.NewLRU[string, int64](tagCacheSize, nil, tagCacheTTL),
	}
}

func tagCacheKey(accountID int64, name string) string {
	return fmt.Sprintf("%d:%s", accountID, name)
}

// FindOrCreate resolves raw tag names to tag rows for the account, creating
// rows that do not exist yet. Names are normalized and deduplicated; blank
// names are dropped. The returned order follows the first occurrence of each
// name in the input.
func (s *TagStore) FindOrCreate(accountID int64, names []string) ([]Tag, error) {
	normalized := NormalizeTagNames(names)
	tags := make([]Tag, 0, len(normalized))

	for _, name := range normalized {
		if id, ok := s.cache.Get(tagCacheKey(accountID, name)); ok {
			tags = append(tags, Tag{ID: id, AccountID: accountID, Name: name})
			continue
		}

		// The no-op DO UPDATE makes RETURNING yield the id on both the
		// insert and the conflict path.
		var id int64
		err := s.db.QueryRow(`
			INSERT INTO tags (account_id, name)
			VALUES ($1, $2)
			ON CONFLICT (account_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`,
			accountID, name,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve tag %q: %w", name, err)
		}

		s.cache.Add(tagCacheKey(accountID, name), id)
		tags = append(tags, Tag{ID: id, AccountID: accountID, Name: name})
	}

	return tags, nil
}

// Resolve maps tag names to existing tag ids without creating anything.
// Names with no matching row are simply absent from the result, so a filter
// built from the result matches nothing when no name resolves.
func (s *TagStore) Resolve(accountID int64, names []string) ([]int64, error) {
	normalized := NormalizeTagNames(names)
	if len(normalized) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT id FROM tags
		WHERE account_id = $1 AND name = ANY($2)`,
		accountID, pq.Array(normalized),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tags: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tag id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListForNotes loads the tags attached to each of the given notes in one
// query, keyed by note id
func (s *TagStore) ListForNotes(noteIDs []int64) (map[int64][]Tag, error) {
	result := make(map[int64][]Tag, len(noteIDs))
	if len(noteIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.Query(`
		SELECT nt.note_id, t.id, t.account_id, t.name
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id = ANY($1)
		ORDER BY t.name`,
		pq.Array(noteIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load note tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID int64
		var tag Tag
		if err := rows.Scan(&noteID, &tag.ID, &tag.AccountID, &tag.Name); err != nil {
			return nil, fmt.Errorf("failed to scan note tag: %w", err)
		}
		result[noteID] = append(result[noteID], tag)
	}
	return result, rows.Err()
}
