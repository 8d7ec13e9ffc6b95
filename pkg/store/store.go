// Package store keeps arena snapshots in SQLite. A snapshot is the record
// stream of every registered type together with named bindings into it.
package store

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/vito/xtype/pkg/ioctx"
	"github.com/vito/xtype/pkg/xtype"
)

var ErrNotFound = errors.New("snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	records    INTEGER NOT NULL,
	data       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_by_name ON snapshots (name, created_at);
CREATE TABLE IF NOT EXISTS bindings (
	snapshot_id TEXT NOT NULL REFERENCES snapshots (id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	position    INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, name)
);
`

// Snapshot describes a saved arena.
type Snapshot struct {
	ID      uuid.UUID
	Name    string
	Created time.Time
	// Records is the number of nodes in the stream.
	Records int
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	// one connection: an in-memory database lives and dies with it
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling foreign keys")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the arena's record stream under name, together with every
// binding. Bindings that contain unresolved types are refused. The bindings
// are registered in a only once the snapshot is committed.
func (s *Store) Save(ctx context.Context, name string, a xtype.Arena, bindings map[string]xtype.Handle) (Snapshot, error) {
	staged := newStaging(a)
	for _, n := range sortedNames(bindings) {
		if err := staged.Register(bindings[n]); err != nil {
			return Snapshot{}, errors.Wrapf(err, "binding %s", n)
		}
	}
	data, err := xtype.Encode(staged)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "encoding arena")
	}
	registered := staged.Registered()
	position := make(map[xtype.Handle]int, len(registered))
	for i, h := range registered {
		position[h] = i + 1
	}

	snap := Snapshot{
		ID:      uuid.New(),
		Name:    name,
		Created: s.now().UTC(),
		Records: len(registered),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, name, created_at, records, data) VALUES (?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.Name, snap.Created.UnixNano(), snap.Records, data,
	); err != nil {
		return Snapshot{}, errors.Wrap(err, "inserting snapshot")
	}
	for _, n := range sortedNames(bindings) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bindings (snapshot_id, name, position) VALUES (?, ?, ?)`,
			snap.ID.String(), n, position[bindings[n]],
		); err != nil {
			return Snapshot{}, errors.Wrapf(err, "inserting binding %s", n)
		}
	}
	if err := tx.Commit(); err != nil {
		return Snapshot{}, err
	}
	for _, h := range bindings {
		if err := a.Register(h); err != nil {
			return Snapshot{}, err
		}
	}
	ioctx.LoggerFromContext(ctx).Debug("saved snapshot",
		"id", snap.ID, "name", name, "records", snap.Records, "bindings", len(bindings))
	return snap, nil
}

// staging registers handles on top of an arena without touching the
// arena's own registrations.
type staging struct {
	xtype.Arena
	extra map[xtype.Handle]struct{}
}

func newStaging(a xtype.Arena) *staging {
	return &staging{Arena: a, extra: map[xtype.Handle]struct{}{}}
}

func (s *staging) Register(h xtype.Handle) error {
	if xtype.ContainsUnresolved(s.Arena, h) {
		return errors.Wrapf(xtype.ErrUnresolved, "register %d", h)
	}
	pending := []xtype.Handle{h}
	for len(pending) > 0 {
		h := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, ok := s.extra[h]; ok {
			continue
		}
		s.extra[h] = struct{}{}
		pending = append(pending, s.Lookup(h).Children()...)
	}
	return nil
}

func (s *staging) Registered() []xtype.Handle {
	hs := s.Arena.Registered()
	own := make(map[xtype.Handle]bool, len(hs))
	for _, h := range hs {
		own[h] = true
	}
	for h := range s.extra {
		if !own[h] {
			hs = append(hs, h)
		}
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// Load interns the snapshot's records into a, registers them, and returns
// the bindings as handles of a.
func (s *Store) Load(ctx context.Context, id uuid.UUID, a xtype.Arena) (map[string]xtype.Handle, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "loading %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", id)
	}
	hs, err := xtype.Decode(a, data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", id)
	}
	for _, h := range hs {
		if err := a.Register(h); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, position FROM bindings WHERE snapshot_id = ?`, id.String())
	if err != nil {
		return nil, errors.Wrap(err, "querying bindings")
	}
	defer rows.Close()
	bindings := map[string]xtype.Handle{}
	for rows.Next() {
		var (
			name string
			pos  int
		)
		if err := rows.Scan(&name, &pos); err != nil {
			return nil, err
		}
		if pos < 1 || pos > len(hs) {
			return nil, errors.Errorf("binding %s refers to position %d of %d", name, pos, len(hs))
		}
		bindings[name] = hs[pos-1]
	}
	return bindings, rows.Err()
}

// Latest returns the most recent snapshot saved under name.
func (s *Store) Latest(ctx context.Context, name string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, records FROM snapshots WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, errors.Wrapf(ErrNotFound, "no snapshot named %q", name)
	}
	return snap, err
}

// List returns every snapshot, oldest first.
func (s *Store) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at, records FROM snapshots ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Delete removes a snapshot and its bindings.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "deleting %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		snap    Snapshot
		id      string
		created int64
	)
	if err := row.Scan(&id, &snap.Name, &created, &snap.Records); err != nil {
		return Snapshot{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "snapshot id %q", id)
	}
	snap.ID = parsed
	snap.Created = time.Unix(0, created).UTC()
	return snap, nil
}

func sortedNames(m map[string]xtype.Handle) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
