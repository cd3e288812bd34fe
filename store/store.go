// Package store persists fact snapshots of an environment in SQLite so
// a later environment can pick up the same working memory.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/runtime"
	"github.com/wippyai/clips-runtime/transcoder"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	revision   TEXT NOT NULL,
	fact_count INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_facts (
	revision TEXT NOT NULL,
	position INTEGER NOT NULL,
	template TEXT NOT NULL,
	text     TEXT NOT NULL,
	PRIMARY KEY (revision, position)
);

CREATE INDEX IF NOT EXISTS idx_snapshot_facts_template ON snapshot_facts(template);
`

// Snapshot describes one saved working memory.
type Snapshot struct {
	Name      string
	Revision  string
	FactCount int
	CreatedAt time.Time
}

// StoredFact is one fact of a snapshot in its text form.
type StoredFact struct {
	Position int
	Template string
	Text     string
}

// Store keeps named fact snapshots in a SQLite database. Saving under an
// existing name replaces the previous snapshot.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "create store directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "open store")
	}
	// One connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "initialize store")
	}
	Logger().Debug("store opened", zap.String("path", path))
	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records every asserted fact of env under name.
func (s *Store) Save(ctx context.Context, env *runtime.Environment, name string) (Snapshot, error) {
	if name == "" {
		return Snapshot{}, errors.InvalidInput(errors.PhaseStore, "snapshot name cannot be empty")
	}
	if env.Closed() {
		return Snapshot{}, errors.Closed(errors.PhaseStore)
	}

	facts := env.Facts()
	defer func() {
		for _, f := range facts {
			f.Release()
		}
	}()
	rows := make([]StoredFact, 0, len(facts))
	for i, f := range facts {
		if err := printable(f); err != nil {
			return Snapshot{}, err
		}
		rows = append(rows, StoredFact{Position: i, Template: f.Template(), Text: f.String()})
	}

	snap := Snapshot{
		Name:      name,
		Revision:  uuid.NewString(),
		FactCount: len(rows),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "begin snapshot")
	}
	defer func() { _ = tx.Rollback() }()

	var old string
	err = tx.QueryRowContext(ctx, `SELECT revision FROM snapshots WHERE name = ?`, name).Scan(&old)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return Snapshot{}, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "read snapshot")
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_facts WHERE revision = ?`, old); err != nil {
			return Snapshot{}, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "drop previous snapshot")
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (name, revision, fact_count, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		 revision = excluded.revision,
		 fact_count = excluded.fact_count,
		 created_at = excluded.created_at`,
		snap.Name, snap.Revision, snap.FactCount, snap.CreatedAt,
	)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "write snapshot")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_facts (revision, position, template, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "prepare facts")
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, snap.Revision, r.Position, r.Template, r.Text); err != nil {
			return Snapshot{}, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "write fact")
		}
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "commit snapshot")
	}
	Logger().Debug("snapshot saved",
		zap.String("name", name),
		zap.String("revision", snap.Revision),
		zap.Int("facts", snap.FactCount))
	return snap, nil
}

// printable fails for facts holding fact, instance or external
// addresses: their printed form cannot be asserted again.
func printable(f *runtime.Fact) error {
	var vals []any
	if f.Implied() {
		fields, err := f.Values()
		if err != nil {
			return err
		}
		vals = fields
	} else {
		slots, err := f.Slots()
		if err != nil {
			return err
		}
		for _, v := range slots {
			vals = append(vals, v)
		}
	}
	if bad := unprintable(vals); bad != "" {
		return errors.New(errors.PhaseStore, errors.KindValue).
			GoType(bad).
			Detail("fact %s holds an address and cannot be saved", f).
			Build()
	}
	return nil
}

// unprintable returns the Go type of the first address value in vals,
// releasing any proxies it meets.
func unprintable(vals []any) string {
	bad := ""
	for _, v := range vals {
		switch x := v.(type) {
		case nil, int64, float64, string, transcoder.Symbol, transcoder.InstanceName:
			continue
		case []any:
			if t := unprintable(x); bad == "" {
				bad = t
			}
			continue
		case *runtime.Fact:
			x.Release()
		case *runtime.Instance:
			x.Release()
		}
		if bad == "" {
			bad = fmt.Sprintf("%T", v)
		}
	}
	return bad
}

// Facts returns the facts of a snapshot in assertion order.
func (s *Store) Facts(ctx context.Context, name string) ([]StoredFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.position, f.template, f.text
		 FROM snapshot_facts f JOIN snapshots s ON s.revision = f.revision
		 WHERE s.name = ?
		 ORDER BY f.position`,
		name,
	)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "query facts")
	}
	defer rows.Close()

	var out []StoredFact
	for rows.Next() {
		var f StoredFact
		if err := rows.Scan(&f.Position, &f.Template, &f.Text); err != nil {
			return nil, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "scan fact")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "read facts")
	}
	return out, nil
}

// Load asserts the facts of a snapshot into env and returns how many
// were asserted. Facts whose templates env does not define fail the load
// at that fact; the facts before it stay asserted.
func (s *Store) Load(ctx context.Context, env *runtime.Environment, name string) (int, error) {
	if _, err := s.Get(ctx, name); err != nil {
		return 0, err
	}
	facts, err := s.Facts(ctx, name)
	if err != nil {
		return 0, err
	}
	for i, f := range facts {
		fact, err := env.AssertString(f.Text)
		if err != nil {
			return i, errors.New(errors.PhaseStore, errors.KindCall).
				Path(name, f.Template).
				Cause(err).
				Detail("assert %s", f.Text).
				Build()
		}
		fact.Release()
	}
	Logger().Debug("snapshot loaded", zap.String("name", name), zap.Int("facts", len(facts)))
	return len(facts), nil
}

// Get returns the snapshot saved under name.
func (s *Store) Get(ctx context.Context, name string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT revision, fact_count, created_at FROM snapshots WHERE name = ?`, name,
	).Scan(&snap.Revision, &snap.FactCount, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, errors.NotFound(errors.PhaseStore, "snapshot", name)
	}
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "read snapshot")
	}
	return snap, nil
}

// List returns every snapshot, newest first.
func (s *Store) List(ctx context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, revision, fact_count, created_at FROM snapshots ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "list snapshots")
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.Name, &snap.Revision, &snap.FactCount, &snap.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.PhaseStore, errors.KindIO, err, "scan snapshot")
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes the snapshot saved under name. Deleting a missing
// snapshot is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindIO, err, "begin delete")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshot_facts WHERE revision IN (SELECT revision FROM snapshots WHERE name = ?)`, name); err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindIO, err, "delete facts")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindIO, err, "delete snapshot")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindIO, err, "commit delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		Logger().Warn("no snapshot to delete", zap.String("name", name))
	}
	return nil
}
