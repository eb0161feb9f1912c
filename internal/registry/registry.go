// Package registry persists vault references per owner in a local SQLite
// database. Every mutation is a single durable statement; entries are
// independent so no multi-row transactions are needed.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/vaultwatch/vaultwatch-backend/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type (
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)

// Registry is the durable owner-scoped VaultRef store.
type Registry struct {
	db      *sql.DB
	metrics Metrics
}

// Open opens (or creates) the registry database at path and brings the
// schema up to date.
func Open(path string, metrics Metrics) (*Registry, error) {
	if path == "" {
		return nil, errors.New("registry path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent mutations.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Registry{db: db, metrics: metrics}, nil
}

// Migrate applies the embedded schema migrations to db.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("init migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// List returns the owner's vault references ordered by insertion. An owner
// with no registry yields an empty slice, never an error.
func (r *Registry) List(ctx context.Context, owner string) (refs []model.VaultRef, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("list", err, started)
	}()

	const query = `
SELECT address, threshold, unlock_time, source
FROM vault_refs
WHERE owner = ?
ORDER BY created_at, address`

	rows, err := r.db.QueryContext(ctx, query, model.NormalizeAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("query vault refs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	refs = make([]model.VaultRef, 0)
	for rows.Next() {
		var (
			ref        model.VaultRef
			threshold  sql.NullString
			unlockTime sql.NullInt64
			source     string
		)
		if err = rows.Scan(&ref.Address, &threshold, &unlockTime, &source); err != nil {
			return nil, fmt.Errorf("scan vault ref: %w", err)
		}
		if threshold.Valid {
			v, ok := new(big.Int).SetString(threshold.String, 10)
			if !ok {
				return nil, fmt.Errorf("corrupt threshold %q for %s", threshold.String, ref.Address)
			}
			ref.Threshold = v
		}
		if unlockTime.Valid {
			ref.UnlockTime = unlockTime.Int64
		}
		ref.Source = model.RefSource(source)
		refs = append(refs, ref)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault refs: %w", err)
	}

	return refs, nil
}

// Add persists a vault reference for the owner. The address is normalized
// to lowercase before the write; adding an address already present (under
// any casing) is a no-op and returns false.
func (r *Registry) Add(ctx context.Context, owner string, ref model.VaultRef) (added bool, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("add", err, started)
	}()

	const query = `
INSERT INTO vault_refs (owner, address, threshold, unlock_time, source, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (owner, address) DO NOTHING`

	var threshold sql.NullString
	if ref.Threshold != nil {
		threshold = sql.NullString{String: ref.Threshold.String(), Valid: true}
	}
	var unlockTime sql.NullInt64
	if ref.UnlockTime != 0 {
		unlockTime = sql.NullInt64{Int64: ref.UnlockTime, Valid: true}
	}
	source := ref.Source
	if source == "" {
		source = model.RefSourceManual
	}

	res, err := r.db.ExecContext(ctx, query,
		model.NormalizeAddress(owner),
		model.NormalizeAddress(ref.Address),
		threshold,
		unlockTime,
		string(source),
		time.Now().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("insert vault ref: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected > 0, nil
}

// Remove deletes a vault reference. Removing an unknown address is a no-op.
func (r *Registry) Remove(ctx context.Context, owner, address string) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("remove", err, started)
	}()

	const query = `DELETE FROM vault_refs WHERE owner = ? AND address = ?`

	if _, err = r.db.ExecContext(ctx, query, model.NormalizeAddress(owner), model.NormalizeAddress(address)); err != nil {
		return fmt.Errorf("delete vault ref: %w", err)
	}
	return nil
}
