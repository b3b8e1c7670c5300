//go:build sqlite
// +build sqlite

package contacts

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "blastbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, storeErr("open", errors.New("contacts path is required for sqlite driver"))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeErr("open", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeErr("open", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, storeErr("migrate", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, phone, grp FROM contacts ORDER BY id`)
	if err != nil {
		return nil, storeErr("load", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var c Recipient
		var grp string
		if err := rows.Scan(&c.Name, &c.Phone, &grp); err != nil {
			return nil, storeErr("load", err)
		}
		c.Group = NormalizeGroup(grp)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("load", err)
	}
	return out, nil
}

// Save replaces the whole table inside one transaction so row ids keep
// encoding book order.
func (s *sqliteStore) Save(ctx context.Context, rows []Recipient) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("save", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
		return storeErr("save", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO contacts(name, phone, grp) VALUES(?,?,?)`)
	if err != nil {
		return storeErr("save", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		group := c.Group
		if group == "" {
			group = DefaultGroup
		}
		if _, err := stmt.ExecContext(ctx, c.Name, c.Phone, string(group)); err != nil {
			return storeErr("save", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("save", err)
	}
	return nil
}
