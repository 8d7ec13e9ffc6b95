package store

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vito/xtype/pkg/ioctx"
	"github.com/vito/xtype/pkg/xtype"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(t.Context(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func petArena() (*xtype.MemArena, map[string]xtype.Handle) {
	a := xtype.NewArena()
	dog := xtype.NewClass(a, "Dog")
	xtype.NewClass(a, "Unrelated")
	return a, map[string]xtype.Handle{
		"pets":   xtype.NewParameterized(a, xtype.NewClass(a, "List"), dog),
		"either": xtype.NewUnion(a, dog, xtype.NewClass(a, "Cat")),
	}
}

func formatted(a xtype.Arena, bindings map[string]xtype.Handle) map[string]string {
	out := map[string]string{}
	for name, h := range bindings {
		out[name] = xtype.FormatType(a, h)
	}
	return out
}

func TestSaveLoad(t *testing.T) {
	ctx := t.Context()
	s := openStore(t, ":memory:")
	src, bindings := petArena()

	snap, err := s.Save(ctx, "pets", src, bindings)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, snap.ID)
	require.Equal(t, "pets", snap.Name)
	require.Equal(t, 5, snap.Records)

	dst := xtype.NewArena()
	xtype.NewClass(dst, "Offset")
	loaded, err := s.Load(ctx, snap.ID, dst)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	if diff := cmp.Diff(formatted(src, bindings), formatted(dst, loaded)); diff != "" {
		t.Errorf("loaded bindings (-saved +loaded):\n%s", diff)
	}
	require.Len(t, dst.Registered(), 5)

	t.Run("loading again yields the same handles", func(t *testing.T) {
		again, err := s.Load(ctx, snap.ID, dst)
		require.NoError(t, err)
		require.Equal(t, loaded, again)
	})

	t.Run("missing snapshots", func(t *testing.T) {
		_, err := s.Load(ctx, uuid.New(), dst)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSaveRefusesUnresolved(t *testing.T) {
	ctx := t.Context()
	s := openStore(t, ":memory:")
	a := xtype.NewArena()
	ghost := xtype.NewParameterized(a, xtype.NewClass(a, "List"), xtype.NewUnresolved(a, "Ghost"))

	_, err := s.Save(ctx, "ghosts", a, map[string]xtype.Handle{"ghost": ghost})
	require.ErrorIs(t, err, xtype.ErrUnresolved)
	require.Empty(t, a.Registered())

	snaps, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, snaps)
}

func TestSaveRegistersOnCommit(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ioctx.LoggerToContext(t.Context(), logger)
	a, bindings := petArena()

	closed, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, closed.Close())
	_, err = closed.Save(ctx, "pets", a, bindings)
	require.Error(t, err)
	require.Empty(t, a.Registered(), "a failed save leaves the arena alone")
	require.Empty(t, logs.String())

	s := openStore(t, ":memory:")
	snap, err := s.Save(ctx, "pets", a, bindings)
	require.NoError(t, err)
	require.Len(t, a.Registered(), snap.Records)
	require.Contains(t, logs.String(), `msg="saved snapshot"`)
	require.Contains(t, logs.String(), "name=pets records=5 bindings=2")
}

func TestLatest(t *testing.T) {
	ctx := t.Context()
	s := openStore(t, ":memory:")
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	a, bindings := petArena()
	first, err := s.Save(ctx, "pets", a, bindings)
	require.NoError(t, err)
	second, err := s.Save(ctx, "pets", a, bindings)
	require.NoError(t, err)
	other, err := s.Save(ctx, "other", a, nil)
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "pets")
	require.NoError(t, err)
	require.Equal(t, second, latest)
	require.True(t, latest.Created.After(first.Created))

	snaps, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []Snapshot{first, second, other}, snaps)

	_, err = s.Latest(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := t.Context()
	s := openStore(t, ":memory:")
	a, bindings := petArena()
	snap, err := s.Save(ctx, "pets", a, bindings)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, snap.ID))
	_, err = s.Load(ctx, snap.ID, xtype.NewArena())
	require.ErrorIs(t, err, ErrNotFound)

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT count(*) FROM bindings`).Scan(&n))
	require.Zero(t, n, "bindings are deleted with their snapshot")

	require.ErrorIs(t, s.Delete(ctx, snap.ID), ErrNotFound)
}

func TestReopen(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "types.db")
	a, bindings := petArena()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	snap, err := s.Save(ctx, "pets", a, bindings)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = openStore(t, path)
	latest, err := s.Latest(ctx, "pets")
	require.NoError(t, err)
	require.Equal(t, snap.ID, latest.ID)

	loaded, err := s.Load(ctx, snap.ID, xtype.NewArena())
	require.NoError(t, err)
	require.Contains(t, loaded, "pets")
}
