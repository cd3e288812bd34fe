package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clips-runtime/engine/sim"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/runtime"
)

const templates = "(deftemplate point (slot x) (slot y (default 0)))"

func newEnv(t *testing.T) *runtime.Environment {
	t.Helper()
	env, err := runtime.New(sim.New(sim.WithStdout(io.Discard), sim.WithStderr(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	require.NoError(t, env.Build(templates))
	return env
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	src := newEnv(t)
	for _, text := range []string{"(point (x 1))", "(point (x 2) (y 5))", `(note "hello world" 3.5)`} {
		_, err := src.AssertString(text)
		require.NoError(t, err)
	}

	snap, err := s.Save(ctx, src, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.FactCount)
	_, err = uuid.Parse(snap.Revision)
	assert.NoError(t, err)

	dst := newEnv(t)
	n, err := s.Load(ctx, dst, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var got []string
	for _, f := range dst.Facts() {
		got = append(got, f.String())
	}
	assert.Equal(t, []string{"(point (x 1) (y 0))", "(point (x 2) (y 5))", `(note "hello world" 3.5)`}, got)
}

func TestSaveReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	env := newEnv(t)

	_, err := env.AssertString("(point (x 1))")
	require.NoError(t, err)
	first, err := s.Save(ctx, env, "s")
	require.NoError(t, err)

	_, err = env.AssertString("(point (x 2))")
	require.NoError(t, err)
	second, err := s.Save(ctx, env, "s")
	require.NoError(t, err)
	assert.NotEqual(t, first.Revision, second.Revision)

	facts, err := s.Facts(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, facts, 2)
	assert.Equal(t, "point", facts[0].Template)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.Revision, list[0].Revision)
}

func TestLoadMissingSnapshot(t *testing.T) {
	s := openStore(t)
	_, err := s.Load(context.Background(), newEnv(t), "nope")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)
}

func TestLoadIntoEnvironmentWithoutTemplates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	env := newEnv(t)
	_, err := env.AssertString("(flag)")
	require.NoError(t, err)
	_, err = env.AssertString("(point (x 1))")
	require.NoError(t, err)
	_, err = s.Save(ctx, env, "s")
	require.NoError(t, err)

	bare, err := runtime.New(sim.New(sim.WithStdout(io.Discard), sim.WithStderr(io.Discard)))
	require.NoError(t, err)
	defer bare.Close()

	n, err := s.Load(ctx, bare, "s")
	require.Error(t, err)
	assert.Equal(t, 1, n, "facts before the failure stay asserted")
	assert.ErrorIs(t, err, errors.ErrCall)
}

func TestDeleteSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	env := newEnv(t)
	_, err := env.AssertString("(point (x 1))")
	require.NoError(t, err)
	_, err = s.Save(ctx, env, "s")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "s"))
	require.NoError(t, s.Delete(ctx, "s"))
	_, err = s.Get(ctx, "s")
	assert.Error(t, err)
	facts, err := s.Facts(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestSaveValidation(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	env := newEnv(t)

	_, err := s.Save(ctx, env, "")
	assert.Error(t, err)

	require.NoError(t, env.Close())
	_, err = s.Save(ctx, env, "s")
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestSaveRejectsAddressSlots(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	env := newEnv(t)
	require.NoError(t, env.Build("(deftemplate holder (slot ref))"))

	target, err := env.AssertString("(point (x 1))")
	require.NoError(t, err)
	defer target.Release()

	for _, ref := range []any{target, &struct{ n int }{1}} {
		held, err := env.AssertFact("holder", map[string]any{"ref": ref})
		require.NoError(t, err)

		_, err = s.Save(ctx, env, "refs")
		assert.ErrorIs(t, err, errors.ErrValue)
		assert.Contains(t, err.Error(), "cannot be saved")

		require.NoError(t, held.Retract())
		held.Release()
	}

	_, err = s.Get(ctx, "refs")
	assert.Error(t, err, "nothing was stored")

	_, err = s.Save(ctx, env, "refs")
	require.NoError(t, err)
}

func TestInMemoryStore(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	env := newEnv(t)
	_, err = env.AssertString("(point (x 9))")
	require.NoError(t, err)
	_, err = s.Save(context.Background(), env, "mem")
	require.NoError(t, err)
	snap, err := s.Get(context.Background(), "mem")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.FactCount)
}
