// Package store keeps snapshots in a content-addressed SQLite database.
//
// Blobs are keyed by the BLAKE3 digest of their uncompressed bytes and
// compressed at rest. A snapshot can carry any number of names; a
// reference is a name, a full id or an unambiguous id prefix.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/heapsnap/snapshot"
)

var log = commonlog.GetLogger("heapsnap.store")

var (
	ErrNotFound        = errors.New("snapshot not found")
	ErrAmbiguous       = errors.New("ambiguous snapshot reference")
	ErrInvalidSnapshot = errors.New("not a valid snapshot")
	ErrCorrupt         = errors.New("stored snapshot does not match its id")
	ErrInvalidName     = errors.New("invalid snapshot name")
)

// MinPrefix is the shortest id prefix accepted as a reference.
const MinPrefix = 6

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	id      TEXT PRIMARY KEY,
	size    INTEGER NOT NULL,
	stored  INTEGER NOT NULL,
	codec   TEXT NOT NULL,
	created INTEGER NOT NULL,
	summary BLOB NOT NULL,
	data    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS names (
	name TEXT PRIMARY KEY,
	id   TEXT NOT NULL REFERENCES blobs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS names_by_id ON names(id);
`

// Entry describes one stored snapshot.
type Entry struct {
	ID      ID
	Names   []string
	Size    int   // uncompressed bytes
	Stored  int   // bytes at rest
	Codec   Codec // codec actually used
	Created time.Time
	Summary snapshot.Summary
}

// Store is a snapshot database. It is safe for concurrent use.
type Store struct {
	db    *sql.DB
	path  string
	codec Codec
	now   func() time.Time

	mu sync.Mutex // serializes writers
}

// Open opens or creates the store at path. New blobs are written with
// codec.
func Open(path string, codec Codec) (*Store, error) {
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and a
	// single writer keeps SQLite free of lock contention.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing database: %w", err)
		}
	}

	log.Debugf("opened store %s (codec %s)", path, codec)
	return &Store{db: db, path: path, codec: codec, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Put stores data, which must be a structurally valid snapshot, and binds
// name to it when name is not empty. Storing the same bytes twice keeps
// one blob.
func (s *Store) Put(ctx context.Context, name string, data []byte) (Entry, error) {
	if name != "" {
		if err := checkName(name); err != nil {
			return Entry{}, err
		}
	}
	dump, err := snapshot.Inspect(data)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	summary, err := snapshot.MarshalDump(dump.Summary())
	if err != nil {
		return Entry{}, fmt.Errorf("encoding summary: %w", err)
	}

	id := Digest(data)
	stored, codec, err := encode(data, s.codec)
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO blobs (id, size, stored, codec, created, summary, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), len(data), len(stored), codec.String(), s.now().UnixNano(), summary, stored)
	if err != nil {
		return Entry{}, fmt.Errorf("storing snapshot: %w", err)
	}
	if name != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO names (name, id) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET id = excluded.id`,
			name, id.String())
		if err != nil {
			return Entry{}, fmt.Errorf("naming snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("committing snapshot: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		log.Infof("stored snapshot %s: %d bytes as %d (%s)", id.Short(), len(data), len(stored), codec)
	}
	return s.stat(ctx, id.String())
}

// checkName rejects names that could be confused with an id reference.
func checkName(name string) error {
	if name == "" || strings.TrimSpace(name) != name || strings.ContainsAny(name, "\n\r\t") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if looksLikeID(name) {
		return fmt.Errorf("%w: %q looks like a snapshot id", ErrInvalidName, name)
	}
	return nil
}

func looksLikeID(ref string) bool {
	if len(ref) < MinPrefix || len(ref) > 2*len(ID{}) {
		return false
	}
	for _, c := range ref {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

// Delete removes the snapshot ref resolves to, together with all of its
// names.
func (s *Store) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	log.Infof("deleted snapshot %s", id[:12])
	return nil
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// Get returns the uncompressed bytes of the snapshot ref resolves to. The
// bytes are checked against the id.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, Entry, error) {
	id, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, Entry{}, err
	}
	var (
		codecName string
		size      int
		stored    []byte
	)
	err = s.db.QueryRowContext(ctx, "SELECT codec, size, data FROM blobs WHERE id = ?", id).
		Scan(&codecName, &size, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, Entry{}, fmt.Errorf("querying snapshot: %w", err)
	}
	codec, err := ParseCodec(codecName)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	data, err := decode(stored, codec, size)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if Digest(data).String() != id {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrCorrupt, id)
	}
	entry, err := s.stat(ctx, id)
	if err != nil {
		return nil, Entry{}, err
	}
	return data, entry, nil
}

// Stat describes the snapshot ref resolves to without reading its bytes.
func (s *Store) Stat(ctx context.Context, ref string) (Entry, error) {
	id, err := s.resolve(ctx, ref)
	if err != nil {
		return Entry{}, err
	}
	return s.stat(ctx, id)
}

// List describes every stored snapshot, oldest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, entryQuery+" GROUP BY b.id ORDER BY b.created, b.id")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return entries, nil
}

const entryQuery = `
SELECT b.id, b.size, b.stored, b.codec, b.created, b.summary, COALESCE(GROUP_CONCAT(n.name, char(10)), '')
FROM blobs b LEFT JOIN names n ON n.id = b.id`

func (s *Store) stat(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, entryQuery+" WHERE b.id = ? GROUP BY b.id", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e         Entry
		id        string
		codecName string
		created   int64
		summary   []byte
		names     string
	)
	if err := row.Scan(&id, &e.Size, &e.Stored, &codecName, &created, &summary, &names); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("reading snapshot entry: %w", err)
	}

	var err error
	if e.ID, err = ParseDigest(id); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if e.Codec, err = ParseCodec(codecName); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if e.Summary, err = snapshot.UnmarshalSummary(summary); err != nil {
		return Entry{}, fmt.Errorf("%w: summary: %w", ErrCorrupt, err)
	}
	e.Created = time.Unix(0, created)
	if names != "" {
		e.Names = strings.Split(names, "\n")
		sort.Strings(e.Names)
	}
	return e, nil
}

// resolve maps a reference to a full hex id. Names take precedence over
// id prefixes.
func (s *Store) resolve(ctx context.Context, ref string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM names WHERE name = ?", ref).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolving %q: %w", ref, err)
	}

	ref = strings.ToLower(ref)
	if !looksLikeID(ref) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM blobs WHERE substr(id, 1, ?) = ? LIMIT 2", len(ref), ref)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", ref, err)
	}
	defer rows.Close()
	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("resolving %q: %w", ref, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolving %q: %w", ref, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%w: %s", ErrAmbiguous, ref)
}
