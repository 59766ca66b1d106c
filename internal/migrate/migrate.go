// Package migrate applies the embedded relay schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"cipherchat/migrations"
)

// Migrator runs goose against the embedded schema. sql.Open does not dial,
// so a Migrator can be built and listed without a reachable database.
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
}

// Open prepares a Migrator for dsn.
func Open(dsn string) (*Migrator, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Migrator{db: db, provider: p}, nil
}

// Close releases the database handle.
func (m *Migrator) Close() error { return m.db.Close() }

// Versions lists the embedded migration versions in apply order.
func (m *Migrator) Versions() []int64 {
	srcs := m.provider.ListSources()
	out := make([]int64, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, s.Version)
	}
	return out
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	res, err := m.provider.Up(ctx)
	return len(res), err
}

// Status writes one line per migration: version, state and source path.
func (m *Migrator) Status(ctx context.Context, w io.Writer) error {
	st, err := m.provider.Status(ctx)
	if err != nil {
		return err
	}
	for _, s := range st {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%05d  %-8s %s  %s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return nil
}

// Up opens dsn, applies pending migrations and closes the handle.
func Up(ctx context.Context, dsn string) error {
	m, err := Open(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	_, err = m.Up(ctx)
	return err
}
