// Package schema advances and reverts the application's database schema
// with goose migrations read from a directory.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Target is everything needed to reach the application database.
type Target struct {
	Endpoint string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders a postgres URL. Endpoint may carry its own port.
func (t Target) DSN() string {
	host, port := t.Endpoint, t.Port
	if h, p, err := net.SplitHostPort(t.Endpoint); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	if port == 0 {
		port = 5432
	}
	sslmode := t.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(t.User, t.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + t.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

func (t Target) Validate() error {
	switch {
	case t.Endpoint == "":
		return errors.New("database endpoint is empty; apply the stack first")
	case t.User == "":
		return errors.New("database user is empty")
	case t.Name == "":
		return errors.New("database name is empty")
	}
	return nil
}

type Migrator struct {
	provider *goose.Provider
	db       *sql.DB
	log      *zap.Logger
}

// Open connects to the target over lib/pq and loads migrations from dir.
func Open(t Target, dir string, log *zap.Logger) (*Migrator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	db, err := sqlx.Connect("postgres", t.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", t.Endpoint, err)
	}
	m, err := New(db.DB, goose.DialectPostgres, os.DirFS(dir), log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading migrations from %s: %w", dir, err)
	}
	return m, nil
}

func New(db *sql.DB, dialect goose.Dialect, migrations fs.FS, log *zap.Logger) (*Migrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return nil, err
	}
	return &Migrator{provider: provider, db: db, log: log}, nil
}

func (m *Migrator) Close() error {
	return m.db.Close()
}

// Advance applies every pending migration and returns the resulting version.
func (m *Migrator) Advance(ctx context.Context) (int64, error) {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		m.log.Info("migration applied", zap.Int64("version", r.Source.Version), zap.Duration("duration", r.Duration))
	}
	if err != nil {
		return 0, fmt.Errorf("advancing schema: %w", err)
	}
	return m.Version(ctx)
}

// Revert rolls back the most recent migration and returns the resulting version.
func (m *Migrator) Revert(ctx context.Context) (int64, error) {
	r, err := m.provider.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("reverting schema: %w", err)
	}
	m.log.Info("migration reverted", zap.Int64("version", r.Source.Version), zap.Duration("duration", r.Duration))
	return m.Version(ctx)
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}
