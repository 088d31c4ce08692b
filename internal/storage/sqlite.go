package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/matsen/pubsync/internal/apperr"
	"github.com/matsen/pubsync/internal/dedupe"
	"github.com/matsen/pubsync/internal/reference"
)

// DB is the SQLite implementation of Store.
type DB struct {
	db *sql.DB
}

// selectPubFields contains the standard field list for SELECT queries.
const selectPubFields = `id, owner_id, title, authors, journal, pub_year,
	doi, pub_type, abstract, url,
	source_kind, external_source_id,
	synced_at, created_at, updated_at, attachment_url`

const insertPub = `
	INSERT INTO publications (
		id, owner_id, title, title_key, authors, journal, pub_year,
		doi, pub_type, abstract, url,
		source_kind, external_source_id,
		synced_at, created_at, updated_at, attachment_url
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

const insertFTS = `
	INSERT INTO publications_fts (id, owner_id, title, authors, journal, abstract)
	VALUES (?, ?, ?, ?, ?, ?)`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", apperr.ErrStore, err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", apperr.ErrStore, err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS publications (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			title_key TEXT NOT NULL,
			authors TEXT NOT NULL,
			journal TEXT,
			pub_year INTEGER NOT NULL,
			doi TEXT,
			pub_type TEXT NOT NULL,
			abstract TEXT,
			url TEXT,
			source_kind TEXT NOT NULL,
			external_source_id TEXT,
			synced_at INTEGER,
			created_at INTEGER,
			updated_at INTEGER,
			attachment_url TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_publications_owner
			ON publications(owner_id, source_kind);

		-- External identity: at most one record per DOI and per title key
		CREATE UNIQUE INDEX IF NOT EXISTS uq_publications_external_doi
			ON publications(owner_id, doi)
			WHERE source_kind = 'external' AND doi IS NOT NULL AND doi != '';
		CREATE UNIQUE INDEX IF NOT EXISTS uq_publications_external_title
			ON publications(owner_id, title_key)
			WHERE source_kind = 'external';

		CREATE VIRTUAL TABLE IF NOT EXISTS publications_fts USING fts5(
			id UNINDEXED,
			owner_id UNINDEXED,
			title,
			authors,
			journal,
			abstract
		);

		CREATE TABLE IF NOT EXISTS owners (
			owner_id TEXT PRIMARY KEY,
			external_id TEXT,
			last_sync_at INTEGER,
			external_count INTEGER NOT NULL DEFAULT 0
		);
	`

	_, err := db.Exec(schema)
	return err
}

// ListByOwner returns an owner's records, optionally restricted to one kind.
func (d *DB) ListByOwner(ctx context.Context, ownerID string, kind reference.SourceKind) ([]reference.Record, error) {
	query := `SELECT ` + selectPubFields + ` FROM publications WHERE owner_id = ?`
	args := []any{ownerID}
	if kind != "" {
		query += " AND source_kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY pub_year DESC, title_key, id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing publications: %v", apperr.ErrStore, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListAll returns every record in the database, ordered by owner.
func (d *DB) ListAll(ctx context.Context) ([]reference.Record, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+selectPubFields+` FROM publications
		ORDER BY owner_id, pub_year DESC, title_key, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing publications: %v", apperr.ErrStore, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Search performs a full-text search over an owner's records.
func (d *DB) Search(ctx context.Context, ownerID, query string, limit int) ([]reference.Record, error) {
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" {
		return []reference.Record{}, nil
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectPubFields+`
		FROM publications
		WHERE owner_id = ?
		  AND id IN (SELECT id FROM publications_fts WHERE publications_fts MATCH ?)
		ORDER BY pub_year DESC, title_key, id
		LIMIT ?`, ownerID, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: searching: %v", apperr.ErrStore, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Get retrieves a record by its ID.
func (d *DB) Get(ctx context.Context, id string) (*reference.Record, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectPubFields+` FROM publications WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperr.ErrStore, id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: publication %s", apperr.ErrNotFound, id)
	}
	return rec, nil
}

// InsertBatch inserts all records in a single transaction.
func (d *DB) InsertBatch(ctx context.Context, recs []reference.Record) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %v", apperr.ErrStore, err)
	}
	defer tx.Rollback()

	inserted, err := insertRecords(ctx, tx, recs)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing batch: %v", apperr.ErrStore, err)
	}
	return inserted, nil
}

// ReplaceExternal swaps an owner's external records for recs in one transaction.
func (d *DB) ReplaceExternal(ctx context.Context, ownerID string, recs []reference.Record) (deleted, inserted int, err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: beginning transaction: %v", apperr.ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM publications_fts WHERE id IN (
			SELECT id FROM publications WHERE owner_id = ? AND source_kind = ?
		)`, ownerID, string(reference.SourceExternal)); err != nil {
		return 0, 0, fmt.Errorf("%w: clearing search index: %v", apperr.ErrStore, err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM publications WHERE owner_id = ? AND source_kind = ?`,
		ownerID, string(reference.SourceExternal))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: deleting external records: %v", apperr.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", apperr.ErrStore, err)
	}

	inserted, err = insertRecords(ctx, tx, recs)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("%w: committing resync: %v", apperr.ErrStore, err)
	}
	return int(n), inserted, nil
}

// insertRecords inserts recs inside tx, skipping identity conflicts.
func insertRecords(ctx context.Context, tx *sql.Tx, recs []reference.Record) (int, error) {
	pubStmt, err := tx.PrepareContext(ctx, insertPub)
	if err != nil {
		return 0, fmt.Errorf("%w: preparing insert: %v", apperr.ErrStore, err)
	}
	defer pubStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, insertFTS)
	if err != nil {
		return 0, fmt.Errorf("%w: preparing fts insert: %v", apperr.ErrStore, err)
	}
	defer ftsStmt.Close()

	inserted := 0
	for _, rec := range recs {
		res, err := pubStmt.ExecContext(ctx, recordArgs(rec)...)
		if err != nil {
			return 0, fmt.Errorf("%w: inserting %s: %v", apperr.ErrStore, rec.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", apperr.ErrStore, err)
		}
		if n == 0 {
			continue
		}
		inserted++

		if _, err := ftsStmt.ExecContext(ctx, rec.ID, rec.OwnerID, rec.Title, rec.Authors, rec.Journal, rec.Abstract); err != nil {
			return 0, fmt.Errorf("%w: indexing %s: %v", apperr.ErrStore, rec.ID, err)
		}
	}
	return inserted, nil
}

// Update overwrites a stored record in place.
func (d *DB) Update(ctx context.Context, rec reference.Record) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", apperr.ErrStore, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE publications SET
			title = ?, title_key = ?, authors = ?, journal = ?, pub_year = ?,
			doi = ?, pub_type = ?, abstract = ?, url = ?,
			synced_at = ?, updated_at = ?, attachment_url = ?
		WHERE id = ?`,
		rec.Title, dedupe.TitleKey(rec.Title), rec.Authors, nullableStringValue(rec.Journal), rec.Year,
		nullableStringValue(rec.DOI), rec.Type, nullableStringValue(rec.Abstract), nullableStringValue(rec.URL),
		timeValue(rec.SyncedAt), timeValue(rec.UpdatedAt), nullableStringValue(rec.AttachmentURL),
		rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s duplicates another external publication", apperr.ErrConflict, rec.ID)
		}
		return fmt.Errorf("%w: updating %s: %v", apperr.ErrStore, rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStore, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: publication %s", apperr.ErrNotFound, rec.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM publications_fts WHERE id = ?`, rec.ID); err != nil {
		return fmt.Errorf("%w: reindexing %s: %v", apperr.ErrStore, rec.ID, err)
	}
	if _, err := tx.ExecContext(ctx, insertFTS, rec.ID, rec.OwnerID, rec.Title, rec.Authors, rec.Journal, rec.Abstract); err != nil {
		return fmt.Errorf("%w: reindexing %s: %v", apperr.ErrStore, rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing update: %v", apperr.ErrStore, err)
	}
	return nil
}

// Delete removes a record by ID.
func (d *DB) Delete(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", apperr.ErrStore, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM publications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting %s: %v", apperr.ErrStore, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStore, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: publication %s", apperr.ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM publications_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: unindexing %s: %v", apperr.ErrStore, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing delete: %v", apperr.ErrStore, err)
	}
	return nil
}

// CountByOwner returns the number of an owner's records of the given kind.
func (d *DB) CountByOwner(ctx context.Context, ownerID string, kind reference.SourceKind) (int, error) {
	query := "SELECT COUNT(*) FROM publications WHERE owner_id = ?"
	args := []any{ownerID}
	if kind != "" {
		query += " AND source_kind = ?"
		args = append(args, string(kind))
	}

	var count int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting publications: %v", apperr.ErrStore, err)
	}
	return count, nil
}

// GetOwner reads an owner's sync metadata.
func (d *DB) GetOwner(ctx context.Context, ownerID string) (*reference.Owner, error) {
	owner := reference.Owner{OwnerID: ownerID}
	var externalID sql.NullString
	var lastSync sql.NullInt64

	err := d.db.QueryRowContext(ctx, `
		SELECT external_id, last_sync_at, external_count
		FROM owners WHERE owner_id = ?`, ownerID).Scan(&externalID, &lastSync, &owner.ExternalCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &owner, nil
		}
		return nil, fmt.Errorf("%w: reading owner %s: %v", apperr.ErrStore, ownerID, err)
	}

	owner.ExternalID = externalID.String
	owner.LastSyncAt = timeFrom(lastSync)
	return &owner, nil
}

// PutOwner creates or replaces an owner's sync metadata.
func (d *DB) PutOwner(ctx context.Context, owner reference.Owner) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO owners (owner_id, external_id, last_sync_at, external_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			external_id = excluded.external_id,
			last_sync_at = excluded.last_sync_at,
			external_count = excluded.external_count`,
		owner.OwnerID, nullableStringValue(owner.ExternalID), timeValue(owner.LastSyncAt), owner.ExternalCount)
	if err != nil {
		return fmt.Errorf("%w: writing owner %s: %v", apperr.ErrStore, owner.OwnerID, err)
	}
	return nil
}

// recordArgs returns the insertPub arguments for rec.
func recordArgs(rec reference.Record) []any {
	return []any{
		rec.ID, rec.OwnerID, rec.Title, dedupe.TitleKey(rec.Title), rec.Authors,
		nullableStringValue(rec.Journal), rec.Year,
		nullableStringValue(rec.DOI), rec.Type, nullableStringValue(rec.Abstract), nullableStringValue(rec.URL),
		string(rec.SourceKind), nullableStringValue(rec.ExternalSourceID),
		timeValue(rec.SyncedAt), timeValue(rec.CreatedAt), timeValue(rec.UpdatedAt),
		nullableStringValue(rec.AttachmentURL),
	}
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*reference.Record, error) {
	var rec reference.Record
	var journal, doi, abstract, url, externalID, attachment sql.NullString
	var sourceKind string
	var syncedAt, createdAt, updatedAt sql.NullInt64

	err := s.Scan(
		&rec.ID, &rec.OwnerID, &rec.Title, &rec.Authors, &journal, &rec.Year,
		&doi, &rec.Type, &abstract, &url,
		&sourceKind, &externalID,
		&syncedAt, &createdAt, &updatedAt, &attachment,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	// Handle nullable fields
	rec.Journal = journal.String
	rec.DOI = doi.String
	rec.Abstract = abstract.String
	rec.URL = url.String
	rec.SourceKind = reference.SourceKind(sourceKind)
	rec.ExternalSourceID = externalID.String
	rec.AttachmentURL = attachment.String
	rec.SyncedAt = timeFrom(syncedAt)
	rec.CreatedAt = timeFrom(createdAt)
	rec.UpdatedAt = timeFrom(updatedAt)

	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]reference.Record, error) {
	recs := []reference.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning publication: %v", apperr.ErrStore, err)
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStore, err)
	}
	return recs, nil
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeValue stores times as Unix nanoseconds, with the zero time as NULL.
func timeValue(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFrom(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// prepareFTSQuery escapes special characters for FTS5 queries.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	// If query contains special chars, quote it
	if strings.ContainsAny(query, "\"*+-:(){}[]^~.,/") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}
