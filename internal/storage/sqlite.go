package storage

import (
	"database/sql"
	"fmt"

	"github.com/alvmarrod/link-weaver/internal/record"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultBatchSize is the number of rows written per transaction
const DefaultBatchSize = 50000

// Storage handles all database operations
type Storage struct {
	db        *sql.DB
	batchSize int
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db, batchSize: DefaultBatchSize}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// SetBatchSize changes how many rows are committed per transaction
func (s *Storage) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		is_redirect INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS redirects (
		source_id INTEGER PRIMARY KEY,
		target_id INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY,
		outgoing_links_count INTEGER NOT NULL DEFAULT 0,
		incoming_links_count INTEGER NOT NULL DEFAULT 0,
		outgoing_links TEXT NOT NULL DEFAULT '',
		incoming_links TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_pages_title ON pages(title);
	`

	_, err := s.db.Exec(schema)
	return err
}

// batch runs insert for every row handed out by next, committing every batchSize rows
func (s *Storage) batch(query string, next func() ([]any, bool, error)) (int, error) {
	written := 0
	for {
		tx, err := s.db.Begin()
		if err != nil {
			return written, fmt.Errorf("failed to begin transaction: %w", err)
		}
		stmt, err := tx.Prepare(query)
		if err != nil {
			tx.Rollback()
			return written, fmt.Errorf("failed to prepare insert: %w", err)
		}

		n := 0
		done := false
		for n < s.batchSize {
			args, ok, err := next()
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return written, err
			}
			if !ok {
				done = true
				break
			}
			if _, err := stmt.Exec(args...); err != nil {
				stmt.Close()
				tx.Rollback()
				return written, fmt.Errorf("failed to insert row: %w", err)
			}
			n++
		}

		stmt.Close()
		if err := tx.Commit(); err != nil {
			return written, fmt.Errorf("failed to commit batch: %w", err)
		}
		written += n
		if done {
			return written, nil
		}
	}
}

// PageSource yields pages to load
type PageSource interface {
	Next() bool
	Page() record.Page
	Err() error
}

// InsertPages upserts every page from src
func (s *Storage) InsertPages(src PageSource) (int, error) {
	return s.batch(`
		INSERT INTO pages (id, title, is_redirect) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = EXCLUDED.title, is_redirect = EXCLUDED.is_redirect
	`, func() ([]any, bool, error) {
		if !src.Next() {
			return nil, false, src.Err()
		}
		p := src.Page()
		return []any{p.ID, p.Title, p.IsRedirect}, true, nil
	})
}

// EdgeSource yields redirect edges to load
type EdgeSource interface {
	Next() bool
	Edge() record.Edge
	Err() error
}

// InsertRedirects upserts every resolved redirect from src
func (s *Storage) InsertRedirects(src EdgeSource) (int, error) {
	return s.batch(`
		INSERT INTO redirects (source_id, target_id) VALUES (?, ?)
		ON CONFLICT(source_id) DO UPDATE SET target_id = EXCLUDED.target_id
	`, func() ([]any, bool, error) {
		if !src.Next() {
			return nil, false, src.Err()
		}
		e := src.Edge()
		return []any{e.SourceID, e.TargetID}, true, nil
	})
}

// AdjacencySource yields merged link records to load
type AdjacencySource interface {
	Next() bool
	Adjacency() record.Adjacency
	Err() error
}

// InsertAdjacency upserts every merged record from src
func (s *Storage) InsertAdjacency(src AdjacencySource) (int, error) {
	return s.batch(`
		INSERT INTO links (id, outgoing_links_count, incoming_links_count, outgoing_links, incoming_links)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outgoing_links_count = EXCLUDED.outgoing_links_count,
			incoming_links_count = EXCLUDED.incoming_links_count,
			outgoing_links = EXCLUDED.outgoing_links,
			incoming_links = EXCLUDED.incoming_links
	`, func() ([]any, bool, error) {
		if !src.Next() {
			return nil, false, src.Err()
		}
		a := src.Adjacency()
		return []any{
			a.PageID,
			a.OutgoingCount,
			a.IncomingCount,
			record.FormatIDList(a.Outgoing),
			record.FormatIDList(a.Incoming),
		}, true, nil
	})
}

// GetPageByTitle retrieves a page by title, returns nil if not found
func (s *Storage) GetPageByTitle(title string) (*Page, error) {
	var page Page
	err := s.db.QueryRow(`
		SELECT id, title, is_redirect FROM pages WHERE title = ?
	`, title).Scan(&page.ID, &page.Title, &page.IsRedirect)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	return &page, nil
}

// GetRedirect returns the canonical target of a redirect, or false if id is not a redirect
func (s *Storage) GetRedirect(id int64) (int64, bool, error) {
	var target int64
	err := s.db.QueryRow("SELECT target_id FROM redirects WHERE source_id = ?", id).Scan(&target)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get redirect: %w", err)
	}
	return target, true, nil
}

// GetAdjacency retrieves the links row of a page, returns nil if not found
func (s *Storage) GetAdjacency(id int64) (*Adjacency, error) {
	var (
		adj      Adjacency
		outgoing string
		incoming string
	)
	err := s.db.QueryRow(`
		SELECT id, outgoing_links_count, incoming_links_count, outgoing_links, incoming_links
		FROM links
		WHERE id = ?
	`, id).Scan(&adj.PageID, &adj.OutgoingCount, &adj.IncomingCount, &outgoing, &incoming)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get links: %w", err)
	}

	if adj.Outgoing, err = record.ParseIDList(outgoing); err != nil {
		return nil, fmt.Errorf("failed to decode outgoing links of %d: %w", id, err)
	}
	if adj.Incoming, err = record.ParseIDList(incoming); err != nil {
		return nil, fmt.Errorf("failed to decode incoming links of %d: %w", id, err)
	}
	return &adj, nil
}

// Counts returns the number of rows in each table
func (s *Storage) Counts() (pages, redirects, links int, err error) {
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"pages", &pages},
		{"redirects", &redirects},
		{"links", &links},
	} {
		if err = s.db.QueryRow("SELECT COUNT(*) FROM " + q.table).Scan(q.dst); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to count %s: %w", q.table, err)
		}
	}
	return pages, redirects, links, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
