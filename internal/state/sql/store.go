package sql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/state"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	// SQLite
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	return strings.Contains(msg, "duplicate key value violates unique constraint")
}

// Store implements state.Store on sqlite3 or postgres.
type Store struct {
	db     *sqlx.DB
	driver string
}

var _ state.Store = (*Store)(nil)

// New connects and migrates.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to state database: %w", err)
	}
	if driver == "sqlite3" {
		// sqlite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running state migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Lock(ctx context.Context, project, holder string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (project, holder, acquired_at) VALUES ($1, $2, $3)`,
		project, holder, time.Now().UTC())
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("lock %s: %w", project, err)
	}

	current, err := s.lock(ctx, project)
	if err != nil {
		return fmt.Errorf("lock %s: %w", project, err)
	}
	if current.Holder == holder {
		return nil
	}
	return current.Held("lock")
}

func (s *Store) Unlock(ctx context.Context, project, holder string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM locks WHERE project = $1 AND holder = $2`, project, holder)
	if err != nil {
		return fmt.Errorf("unlock %s: %w", project, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if current, err := s.lock(ctx, project); err == nil {
			return current.Held("unlock")
		}
	}
	return nil
}

func (s *Store) ForceUnlock(ctx context.Context, project, holder string) (*state.Lock, error) {
	current, err := s.lock(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("force unlock %s: %w", project, err)
	}
	if holder != "" && current.Holder != holder {
		return nil, current.Held("force unlock")
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM locks WHERE project = $1 AND holder = $2`, project, current.Holder)
	if err != nil {
		return nil, fmt.Errorf("force unlock %s: %w", project, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("force unlock %s: released concurrently: %w", project, domain.ErrNotFound)
	}
	return current, nil
}

// lock reads the current holder, or domain.ErrNotFound.
func (s *Store) lock(ctx context.Context, project string) (*state.Lock, error) {
	var l state.Lock
	err := s.db.GetContext(ctx, &l, `SELECT project, holder, acquired_at FROM locks WHERE project = $1`, project)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

type snapshotRow struct {
	ID        string    `db:"id"`
	Project   string    `db:"project"`
	Version   int       `db:"version"`
	RunID     string    `db:"run_id"`
	Status    string    `db:"status"`
	Error     string    `db:"error"`
	Resources string    `db:"resources"`
	Outputs   string    `db:"outputs"`
	CreatedAt time.Time `db:"created_at"`
}

func (r snapshotRow) snapshot() (*state.Snapshot, error) {
	snap := &state.Snapshot{
		ID:        r.ID,
		Project:   r.Project,
		Version:   r.Version,
		RunID:     r.RunID,
		Status:    state.Status(r.Status),
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Resources), &snap.Resources); err != nil {
		return nil, fmt.Errorf("decode resources of snapshot %s: %w", r.ID, err)
	}
	if snap.Resources == nil {
		snap.Resources = make(map[string]state.Record)
	}
	if err := json.Unmarshal([]byte(r.Outputs), &snap.Outputs); err != nil {
		return nil, fmt.Errorf("decode outputs of snapshot %s: %w", r.ID, err)
	}
	return snap, nil
}

const selectSnapshot = `SELECT id, project, version, run_id, status, error, resources, outputs, created_at FROM snapshots`

func (s *Store) Latest(ctx context.Context, project string) (*state.Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row,
		selectSnapshot+` WHERE project = $1 ORDER BY version DESC LIMIT 1`, project)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot of %s: %w", project, err)
	}
	return row.snapshot()
}

func (s *Store) Save(ctx context.Context, snap *state.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	resources, err := json.Marshal(snap.Resources)
	if err != nil {
		return fmt.Errorf("encode resources: %w", err)
	}
	outputs, err := json.Marshal(snap.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM snapshots WHERE project = $1`, snap.Project); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if snap.Version != current+1 {
		return fmt.Errorf("save %s version %d over %d: %w", snap.Project, snap.Version, current, domain.ErrConflict)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, project, version, run_id, status, error, resources, outputs, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snap.ID, snap.Project, snap.Version, snap.RunID, string(snap.Status), snap.Error,
		string(resources), string(outputs), snap.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("save %s version %d: %w", snap.Project, snap.Version, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return tx.Commit()
}

func (s *Store) History(ctx context.Context, project string, limit int) ([]*state.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows,
		selectSnapshot+` WHERE project = $1 ORDER BY version DESC LIMIT $2`, project, limit); err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", project, err)
	}
	out := make([]*state.Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := row.snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
