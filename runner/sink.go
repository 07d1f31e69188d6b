package runner

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/quillscript/quill/host"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// A Sink receives the packages produced by give statements.
type Sink interface {
	Write(ctx context.Context, runID uuid.UUID, pkg *host.Package) error
	Close() error
}

// MemorySink keeps packages in memory, grouped by run.
type MemorySink struct {
	mu   sync.Mutex
	runs map[uuid.UUID][]*host.Package
}

func NewMemorySink() *MemorySink {
	return &MemorySink{runs: make(map[uuid.UUID][]*host.Package)}
}

func (m *MemorySink) Write(_ context.Context, runID uuid.UUID, pkg *host.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = append(m.runs[runID], pkg)
	return nil
}

func (m *MemorySink) Packages(runID uuid.UUID) []*host.Package {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*host.Package(nil), m.runs[runID]...)
}

func (m *MemorySink) Close() error { return nil }

// SQLiteSink stores encoded packages in a SQLite database.
type SQLiteSink struct {
	db       *sql.DB
	encoding host.Encoding
	mu       sync.Mutex
}

const givesSchema = `CREATE TABLE IF NOT EXISTS gives (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	package_id TEXT NOT NULL UNIQUE,
	target     TEXT NOT NULL,
	line       INTEGER NOT NULL,
	encoding   TEXT NOT NULL,
	summary    TEXT NOT NULL,
	payload    BLOB NOT NULL
)`

func NewSQLiteSink(path string, enc host.Encoding) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(givesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &SQLiteSink{db: db, encoding: enc}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, runID uuid.UUID, pkg *host.Package) error {
	payload, err := pkg.Encode(s.encoding)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO gives (run_id, package_id, target, line, encoding, summary, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), pkg.ID.String(), pkg.Target, pkg.Line, s.encoding.String(), pkg.String(), payload)
	if err != nil {
		return fmt.Errorf("storing package %s: %w", pkg.ID, err)
	}
	log.Debug().Str("run", runID.String()).Str("target", pkg.Target).Int("bytes", len(payload)).Msg("give package stored")
	return nil
}

// Packages reads back the packages of one run in the order they were given.
func (s *SQLiteSink) Packages(ctx context.Context, runID uuid.UUID) ([]*host.Package, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT encoding, payload FROM gives WHERE run_id = ? ORDER BY seq`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("querying packages: %w", err)
	}
	defer rows.Close()
	var out []*host.Package
	for rows.Next() {
		var encName string
		var payload []byte
		if err := rows.Scan(&encName, &payload); err != nil {
			return nil, fmt.Errorf("scanning package: %w", err)
		}
		enc, err := host.ParseEncoding(encName)
		if err != nil {
			return nil, err
		}
		pkg, err := host.DecodePackage(payload, enc)
		if err != nil {
			return nil, err
		}
		out = append(out, pkg)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// OpenSinks creates the sinks a spec asks for.
func (s *Spec) OpenSinks() ([]Sink, error) {
	if s.Give.Database == "" {
		return nil, nil
	}
	enc, err := host.ParseEncoding(s.Give.Encoding)
	if err != nil {
		return nil, err
	}
	sink, err := NewSQLiteSink(s.Give.Database, enc)
	if err != nil {
		return nil, err
	}
	return []Sink{sink}, nil
}
