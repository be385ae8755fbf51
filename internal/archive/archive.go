// Package archive keeps reported cases after their session expires.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"biosecure/internal/casefile"
)

var ErrNotFound = errors.New("case not found")

// Store persists finished cases keyed by case id.
type Store interface {
	Save(ctx context.Context, cf casefile.CaseFile) error
	Get(ctx context.Context, caseID string) (casefile.CaseFile, error)
}

type PostgresStore struct {
	db *sql.DB

	schemaMu    sync.Mutex
	schemaReady bool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS case_archive (
    case_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    report_url TEXT NOT NULL DEFAULT '',
    body JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_case_archive_status ON case_archive(status);
`); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.schemaReady = true
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, cf casefile.CaseFile) error {
	if strings.TrimSpace(cf.CaseID) == "" {
		return fmt.Errorf("case id is required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(cf)
	if err != nil {
		return fmt.Errorf("marshal case %s: %w", cf.CaseID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO case_archive (case_id, status, report_url, body, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (case_id)
DO UPDATE SET status=EXCLUDED.status, report_url=EXCLUDED.report_url, body=EXCLUDED.body, updated_at=EXCLUDED.updated_at
`, cf.CaseID, string(cf.Status), cf.ReportURL, body, cf.CreatedAt, time.Now().UTC())
	return err
}

func (s *PostgresStore) Get(ctx context.Context, caseID string) (casefile.CaseFile, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return casefile.CaseFile{}, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM case_archive WHERE case_id=$1`, caseID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return casefile.CaseFile{}, ErrNotFound
	}
	if err != nil {
		return casefile.CaseFile{}, err
	}
	var cf casefile.CaseFile
	if err := json.Unmarshal(body, &cf); err != nil {
		return casefile.CaseFile{}, fmt.Errorf("decode case %s: %w", caseID, err)
	}
	return cf, nil
}

type MemoryStore struct {
	mu    sync.RWMutex
	cases map[string]casefile.CaseFile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string]casefile.CaseFile)}
}

func (m *MemoryStore) Save(_ context.Context, cf casefile.CaseFile) error {
	if strings.TrimSpace(cf.CaseID) == "" {
		return fmt.Errorf("case id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[cf.CaseID] = cf.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, caseID string) (casefile.CaseFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cf, ok := m.cases[caseID]
	if !ok {
		return casefile.CaseFile{}, ErrNotFound
	}
	return cf.Clone(), nil
}
