package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	// Advisory lock key so concurrent replicas do not race on startup.
	lockKey = 7420115
)

// Manager applies the identity schema: SQL migrations and idempotent seed
// files stored on disk.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewManager constructs a Manager over an open database handle.
func NewManager(db *sql.DB, migrationsDir, seedsDir string) *Manager {
	return &Manager{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
	}
}

// Up applies all pending migrations in lexical order.
func (m *Manager) Up(ctx context.Context) error {
	return m.withLock(ctx, func() error {
		applied, err := m.applied(ctx, migrationsTable)
		if err != nil {
			return err
		}
		files, err := collectSQL(m.migrationsDir, ".up.sql")
		if err != nil {
			return err
		}
		for _, f := range files {
			if applied[f.name] {
				continue
			}
			if err := m.execFile(ctx, f.path); err != nil {
				return fmt.Errorf("migrate: apply %s: %w", f.name, err)
			}
			if err := m.record(ctx, migrationsTable, f.name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Down rolls back the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.withLock(ctx, func() error {
		history, err := m.history(ctx)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return errors.New("migrate: nothing applied")
		}
		last := history[len(history)-1]
		down := strings.TrimSuffix(filepath.Join(m.migrationsDir, last), ".up.sql") + ".down.sql"
		if _, err := os.Stat(down); err != nil {
			return fmt.Errorf("migrate: missing down file for %s", last)
		}
		if err := m.execFile(ctx, down); err != nil {
			return fmt.Errorf("migrate: rollback %s: %w", last, err)
		}
		_, err = m.db.ExecContext(ctx,
			fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last)
		return err
	})
}

// Status returns applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	var out []string
	err := m.withLock(ctx, func() error {
		var err error
		out, err = m.history(ctx)
		return err
	})
	return out, err
}

// Seed applies seed files once each. Seed SQL must itself be idempotent so a
// reset bookkeeping table stays safe.
func (m *Manager) Seed(ctx context.Context) error {
	return m.withLock(ctx, func() error {
		applied, err := m.applied(ctx, seedsTable)
		if err != nil {
			return err
		}
		files, err := collectSQL(m.seedsDir, ".sql")
		if err != nil {
			return err
		}
		for _, f := range files {
			if applied[f.name] {
				continue
			}
			if err := m.execFile(ctx, f.path); err != nil {
				return fmt.Errorf("migrate: seed %s: %w", f.name, err)
			}
			if err := m.record(ctx, seedsTable, f.name); err != nil {
				return err
			}
		}
		return nil
	})
}

// withLock runs fn under the advisory lock. Advisory locks are
// session-scoped, so lock, bookkeeping DDL and unlock must all ride one
// pinned connection; going through the pool would unlock on a connection
// that never held the lock.
func (m *Manager) withLock(ctx context.Context, fn func() error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migrate: checkout conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `select pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("migrate: acquire lock: %w", err)
	}
	runErr := m.ensureTables(ctx, conn)
	if runErr == nil {
		runErr = fn()
	}

	var released bool
	if err := conn.QueryRowContext(ctx, `select pg_advisory_unlock($1)`, lockKey).Scan(&released); err != nil {
		if runErr == nil {
			runErr = fmt.Errorf("migrate: release lock: %w", err)
		}
	} else if !released && runErr == nil {
		runErr = errors.New("migrate: lock was not held at release")
	}
	return runErr
}

func (m *Manager) ensureTables(ctx context.Context, conn *sql.Conn) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			)`, table)
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, table, name string) error {
	_, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
		name, time.Now().UTC())
	return err
}

func (m *Manager) applied(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (m *Manager) history(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

type sqlFile struct {
	name string
	path string
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []sqlFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		files = append(files, sqlFile{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted strings.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range sql {
		switch r {
		case '\'':
			inString = !inString
			current.WriteRune(r)
		case ';':
			current.WriteRune(r)
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
