package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "cadencebot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
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

func (s *sqliteStore) LoadInstances(ctx context.Context) ([]InstanceRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, x, y, w, h, interval_a, interval_b FROM instances ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InstanceRecord
	for rows.Next() {
		var r InstanceRecord
		if err := rows.Scan(&r.Name, &r.Region[0], &r.Region[1], &r.Region[2], &r.Region[3], &r.IntervalA, &r.IntervalB); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveInstances(ctx context.Context, recs []InstanceRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instances`); err != nil {
		return err
	}
	for _, r := range recs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instances(name, x, y, w, h, interval_a, interval_b) VALUES(?,?,?,?,?,?,?)`,
			r.Name, r.Region[0], r.Region[1], r.Region[2], r.Region[3], r.IntervalA, r.IntervalB,
		); err != nil {
			return fmt.Errorf("insert %q: %w", r.Name, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendAction(ctx context.Context, rec ActionRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions(id, at, instance, cadence, payload, attempts, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.At.Format(time.RFC3339Nano), rec.Instance, rec.Cadence, rec.Payload,
		rec.Attempts, rec.OK, nullStr(rec.Error), rec.TookMS,
	)
	return err
}

func (s *sqliteStore) RecentActions(ctx context.Context, limit int) ([]ActionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, instance, cadence, payload, attempts, ok, err, took_ms
		 FROM actions ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var (
			r      ActionRecord
			at     string
			errStr sql.NullString
		)
		if err := rows.Scan(&r.ID, &at, &r.Instance, &r.Cadence, &r.Payload, &r.Attempts, &r.OK, &errStr, &r.TookMS); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			r.At = t
		}
		r.Error = errStr.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest last, matching the file driver.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
