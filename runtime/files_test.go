package runtime

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/transcoder"
)

func TestFactFileRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(deftemplate point (slot x) (multislot tags))")
	_, err := f.env.AssertString(`(point (x 1) (tags a "b"))`)
	require.NoError(t, err)
	_, err = f.env.AssertString("(color red)")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "facts.clp")

	n, err := f.env.SaveFacts(path, engine.LocalSave)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, f.env.Reset())
	require.Empty(t, f.env.Facts())
	require.NoError(t, f.env.LoadFacts(path))

	facts := f.env.Facts()
	require.Len(t, facts, 2)
	tags, err := facts[0].Slot("tags")
	require.NoError(t, err)
	assert.Equal(t, []any{transcoder.Symbol("a"), "b"}, tags)
	assert.Equal(t, "(color red)", facts[1].String())

	require.NoError(t, f.env.LoadFactsText("(color blue)"))
	assert.Len(t, f.env.Facts(), 3)
}

func TestFactFileErrors(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	err := f.env.LoadFacts(filepath.Join(dir, "missing.clp"))
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindIO, e.Kind)
	assert.Equal(t, errors.PhaseLoad, e.Phase)
	assert.Contains(t, e.Detail, "FILECOM1")
	assert.True(t, e.Reported)

	assert.ErrorIs(t, f.env.LoadFactsText("(color"), errors.ErrIO)

	_, err = f.env.SaveFacts(filepath.Join(dir, "no", "such.clp"), engine.VisibleSave)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.PhaseSave, e.Phase)
}

func TestInstanceFileRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.build(t,
		"(defclass point (is-a USER) (slot x) (multislot tags))",
		`(defmessage-handler point init after () (printout t "init " (instance-name ?self) crlf))`,
	)
	_, err := f.env.MakeInstance(`([a] of point (x 1) (tags p "q"))`)
	require.NoError(t, err)
	f.stdout.Reset()
	dir := t.TempDir()
	text := filepath.Join(dir, "ins.clp")
	bin := filepath.Join(dir, "ins.bin")

	n, err := f.env.SaveInstances(text, false, engine.LocalSave)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = f.env.SaveInstances(bin, true, engine.LocalSave)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	f.eval(t, "(unmake-instance *)")
	n, err = f.env.RestoreInstances(text)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, f.stdout.String())

	a, err := f.env.FindInstance("a")
	require.NoError(t, err)
	x, err := a.Slot("x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), x)

	f.eval(t, "(unmake-instance *)")
	n, err = f.env.LoadInstances(bin, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, f.stdout.String())

	f.eval(t, "(unmake-instance *)")
	n, err = f.env.LoadInstances(text, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "init [a]\n", f.stdout.String())

	n, err = f.env.RestoreInstancesText("([b] of point (x 2))")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = f.env.LoadInstancesText("([c] of point)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, f.env.Instances(), 3)
}

func TestInstanceFileErrors(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(defclass point (is-a USER) (slot x))")
	_, err := f.env.MakeInstance("([a] of point)")
	require.NoError(t, err)
	dir := t.TempDir()
	text := filepath.Join(dir, "ins.clp")
	bin := filepath.Join(dir, "ins.bin")
	_, err = f.env.SaveInstances(text, false, engine.LocalSave)
	require.NoError(t, err)
	_, err = f.env.SaveInstances(bin, true, engine.LocalSave)
	require.NoError(t, err)

	_, err = f.env.LoadInstances(text, true)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Detail, "INSFILE3")

	_, err = f.env.LoadInstances(bin, false)
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Detail, "INSFILE2")

	_, err = f.env.LoadInstancesText("([b] of nosuch)")
	assert.ErrorIs(t, err, errors.ErrIO)
	_, err = f.env.RestoreInstances(filepath.Join(dir, "missing.clp"))
	assert.ErrorIs(t, err, errors.ErrIO)
	_, err = f.env.SaveInstances(filepath.Join(dir, "no", "such.bin"), true, engine.LocalSave)
	assert.ErrorIs(t, err, errors.ErrIO)
}
