package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/skill"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

// Entry is one indexed corpus entry.
type Entry struct {
	ID           string    `db:"id"`
	Kind         string    `db:"kind"`
	Name         string    `db:"name"`
	Source       string    `db:"source"`
	Path         string    `db:"path"`
	Description  string    `db:"description"`
	Model        string    `db:"model"`
	ArgumentHint string    `db:"argument_hint"`
	Content      string    `db:"content"`
	ContentHash  string    `db:"content_hash"`
	SizeBytes    int64     `db:"size_bytes"`
	IndexedAt    time.Time `db:"indexed_at"`
}

// EntryRef identifies an entry in sync results.
type EntryRef struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Path   string `json:"path"`
}

// UpdatedEntry carries both content revisions so callers can diff them.
type UpdatedEntry struct {
	EntryRef
	Previous string `json:"-"`
	Current  string `json:"-"`
}

// SyncResult describes what a sync changed.
type SyncResult struct {
	Added     []EntryRef
	Updated   []UpdatedEntry
	Removed   []EntryRef
	Unchanged []EntryRef
}

// Total returns the number of entries the sync considered.
func (r *SyncResult) Total() int {
	return len(r.Added) + len(r.Updated) + len(r.Removed) + len(r.Unchanged)
}

// Store is the SQLite-backed corpus index.
type Store struct {
	db *sqlx.DB
}

// Open opens the index at path, creating it and applying migrations as
// needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}

	runner := NewMigrationRunner(db)
	if err := runner.Run(ctx, migrations); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate index database")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sync reconciles the index against a snapshot: new entries are inserted,
// changed ones updated (keyed by content hash), and entries that vanished
// from the corpus are deleted.
func (s *Store) Sync(ctx context.Context, snap *workspace.Snapshot) (*SyncResult, error) {
	desired := entriesFromSnapshot(snap)

	existing := make(map[string]Entry)
	var rows []Entry
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM entries"); err != nil {
		return nil, errors.Wrap(err, "failed to load existing entries")
	}
	for _, row := range rows {
		existing[entryKey(row.Kind, row.Name, row.Source)] = row
	}

	result := &SyncResult{}
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin sync transaction")
	}
	defer tx.Rollback()

	seen := make(map[string]bool)
	for _, e := range desired {
		key := entryKey(e.Kind, e.Name, e.Source)
		seen[key] = true

		prev, ok := existing[key]
		if !ok {
			e.ID = uuid.NewString()
			e.IndexedAt = now
			if err := upsertEntry(ctx, tx, e); err != nil {
				return nil, err
			}
			result.Added = append(result.Added, e.ref())
			continue
		}

		if prev.ContentHash == e.ContentHash && prev.Path == e.Path {
			result.Unchanged = append(result.Unchanged, e.ref())
			continue
		}

		e.ID = prev.ID
		e.IndexedAt = now
		if err := upsertEntry(ctx, tx, e); err != nil {
			return nil, err
		}
		result.Updated = append(result.Updated, UpdatedEntry{
			EntryRef: e.ref(),
			Previous: prev.Content,
			Current:  e.Content,
		})
	}

	for key, row := range existing {
		if seen[key] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", row.ID); err != nil {
			return nil, errors.Wrap(err, "failed to delete vanished entry")
		}
		result.Removed = append(result.Removed, row.ref())
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit sync")
	}
	return result, nil
}

// Search runs a LIKE match over name, description, and content. Entries
// whose name matches rank before body-only hits. An empty kinds slice
// searches every kind.
func (s *Store) Search(ctx context.Context, query string, kinds []string) ([]Entry, error) {
	pattern := "%" + escapeLike(query) + "%"

	stmt := `
		SELECT * FROM entries
		WHERE (name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')
	`
	args := []interface{}{pattern, pattern, pattern}

	if len(kinds) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
		stmt += fmt.Sprintf(" AND kind IN (%s)", placeholders)
		for _, k := range kinds {
			args = append(args, k)
		}
	}

	stmt += ` ORDER BY CASE WHEN name LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, kind, name`
	args = append(args, pattern)

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to search index")
	}
	return entries, nil
}

// List returns every indexed entry ordered by kind then name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, "SELECT * FROM entries ORDER BY kind, name"); err != nil {
		return nil, errors.Wrap(err, "failed to list index entries")
	}
	return entries, nil
}

func (e Entry) ref() EntryRef {
	return EntryRef{Kind: e.Kind, Name: e.Name, Source: e.Source, Path: e.Path}
}

func entryKey(kind, name, source string) string {
	return kind + "\x00" + name + "\x00" + source
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// escapeLike escapes LIKE metacharacters in user queries.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func upsertEntry(ctx context.Context, tx *sqlx.Tx, e Entry) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO entries (id, kind, name, source, path, description, model, argument_hint, content, content_hash, size_bytes, indexed_at)
		VALUES (:id, :kind, :name, :source, :path, :description, :model, :argument_hint, :content, :content_hash, :size_bytes, :indexed_at)
		ON CONFLICT (kind, name, source) DO UPDATE SET
			path = excluded.path,
			description = excluded.description,
			model = excluded.model,
			argument_hint = excluded.argument_hint,
			content = excluded.content,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			indexed_at = excluded.indexed_at
	`, e)
	return errors.Wrap(err, "failed to upsert entry")
}

// entriesFromSnapshot flattens a snapshot into index rows. Content is the
// entry body with frontmatter stripped, matching what render and search
// consume.
func entriesFromSnapshot(snap *workspace.Snapshot) []Entry {
	var entries []Entry

	for _, c := range snap.Commands {
		entries = append(entries, Entry{
			Kind:         workspace.KindCommand,
			Name:         c.Name,
			Source:       c.Source,
			Path:         c.Path,
			Description:  c.Description,
			Model:        c.Model,
			ArgumentHint: c.ArgumentHint,
			Content:      c.Body,
			ContentHash:  hashContent(c.Body),
			SizeBytes:    int64(len(c.Body)),
		})
	}

	for _, sk := range snap.Skills {
		entries = append(entries, Entry{
			Kind:        workspace.KindSkill,
			Name:        sk.Name,
			Source:      sk.Source,
			Path:        filepath.Join(sk.Directory, skill.SkillFileName),
			Description: sk.Description,
			Content:     sk.Body,
			ContentHash: hashContent(sk.Body),
			SizeBytes:   int64(len(sk.Body)),
		})
	}

	for _, a := range snap.Agents {
		entries = append(entries, Entry{
			Kind:        workspace.KindAgent,
			Name:        a.Name,
			Source:      a.Source,
			Path:        a.Path,
			Description: a.Description,
			Model:       a.Model,
			Content:     a.Persona,
			ContentHash: hashContent(a.Persona),
			SizeBytes:   int64(len(a.Persona)),
		})
	}

	return entries
}
