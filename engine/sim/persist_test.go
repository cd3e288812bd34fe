package sim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clips-runtime/engine"
)

func TestFactFiles(t *testing.T) {
	h := newHarness(t, "")
	h.build(t, "(deftemplate point (slot x) (multislot tags))")
	h.eval(t, `(assert (point (x 1) (tags a "b")))`)
	h.eval(t, "(assert (color red))")
	dir := t.TempDir()
	path := filepath.Join(dir, "facts.clp")

	assert.Equal(t, int64(2), h.e.SaveFacts(h.env, path, engine.LocalSave))
	h.e.Reset(h.env)
	require.Empty(t, h.e.Facts(h.env))

	require.True(t, h.e.LoadFacts(h.env, path))
	facts := h.e.Facts(h.env)
	require.Len(t, facts, 2)
	assert.Equal(t, `(point (x 1) (tags a "b"))`, h.e.FactPPForm(h.env, facts[0]))
	assert.Equal(t, "(color red)", h.e.FactPPForm(h.env, facts[1]))

	require.True(t, h.e.LoadFactsFromString(h.env, "(color blue) (color green)"))
	assert.Len(t, h.e.Facts(h.env), 4)

	assert.False(t, h.e.LoadFactsFromString(h.env, "(color"))
	assert.False(t, h.e.LoadFacts(h.env, filepath.Join(dir, "missing.clp")))
	assert.Equal(t, int64(-1), h.e.SaveFacts(h.env, filepath.Join(dir, "no", "such.clp"), engine.VisibleSave))
	assert.Contains(t, h.stderr.String(), "[FILECOM1]")

	assert.Equal(t, engine.Symbol("TRUE"), h.eval(t, `(save-facts "`+filepath.ToSlash(path)+`" visible)`))
}

func TestInstanceFiles(t *testing.T) {
	h := newHarness(t, "")
	h.build(t,
		"(defclass point (is-a USER) (slot x) (multislot tags))",
		`(defmessage-handler point init after () (printout t "init" crlf))`,
	)
	h.eval(t, `(make-instance a of point (x 1) (tags p "q"))`)
	h.stdout.Reset()
	dir := t.TempDir()
	text := filepath.Join(dir, "ins.clp")
	bin := filepath.Join(dir, "ins.bin")

	require.Equal(t, int64(1), h.e.SaveInstances(h.env, text, engine.LocalSave))
	h.eval(t, "(unmake-instance *)")
	require.Empty(t, h.e.Instances(h.env))

	assert.Equal(t, int64(1), h.e.RestoreInstances(h.env, text))
	assert.Empty(t, h.stdout.String(), "restore skips init")
	p := h.e.FindInstance(h.env, "a")
	require.NotZero(t, p)
	assert.Equal(t, `[a] of point (x 1) (tags p "q")`, h.e.InstancePPForm(h.env, p))

	assert.Equal(t, int64(1), h.e.LoadInstances(h.env, text))
	assert.Equal(t, "init\n", h.stdout.String())
	assert.Len(t, h.e.Instances(h.env), 1)

	require.Equal(t, int64(1), h.e.BinarySaveInstances(h.env, bin, engine.LocalSave))
	h.eval(t, "(unmake-instance *)")
	h.stdout.Reset()
	assert.Equal(t, int64(1), h.e.BinaryLoadInstances(h.env, bin))
	assert.Empty(t, h.stdout.String())
	assert.NotZero(t, h.e.FindInstance(h.env, "a"))

	assert.Equal(t, int64(-1), h.e.LoadInstances(h.env, bin))
	assert.Equal(t, int64(-1), h.e.BinaryLoadInstances(h.env, text))
	assert.Contains(t, h.stderr.String(), "[INSFILE3]")

	assert.Equal(t, int64(2), h.e.RestoreInstancesFromString(h.env, "([b] of point (x 2)) ([c] of point)"))
	assert.Len(t, h.e.Instances(h.env), 3)
	assert.Equal(t, int64(1), h.e.LoadInstancesFromString(h.env, "([d] of point)"))
	assert.Equal(t, "init\n", h.stdout.String())
	assert.Equal(t, int64(-1), h.e.LoadInstancesFromString(h.env, "([e] of nosuch)"))
	assert.Equal(t, int64(-1), h.e.RestoreInstances(h.env, filepath.Join(dir, "missing.clp")))
}
