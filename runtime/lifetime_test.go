package runtime

import (
	"fmt"
	goruntime "runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/engine/sim"
)

func TestProxyReferenceCounting(t *testing.T) {
	f := newFixture(t)
	first, err := f.env.AssertString("(a 1)")
	require.NoError(t, err)
	assert.Equal(t, 1, f.factRefs(first))

	proxies := []*Fact{first}
	for i := 0; i < 4; i++ {
		p, err := f.env.FindFact(1)
		require.NoError(t, err)
		proxies = append(proxies, p)
	}
	assert.Equal(t, 5, f.factRefs(first))

	byKey := make(map[Key]int)
	for _, p := range proxies {
		byKey[p.Key()]++
	}
	assert.Len(t, byKey, 1)

	for i, p := range proxies {
		p.Release()
		p.Release()
		assert.Equal(t, 4-i, f.factRefs(first))
	}
}

func TestRetractedFactIsReclaimedAfterRelease(t *testing.T) {
	f := newFixture(t)
	fact, err := f.env.AssertString("(a 1)")
	require.NoError(t, err)
	ptr := fact.ptr

	require.NoError(t, fact.Retract())
	assert.False(t, f.sim.Recycled(f.env.env, ptr), "a held fact outlives its retraction")

	fact.Release()
	assert.True(t, f.sim.Recycled(f.env.env, ptr))
}

func TestInstanceReferenceCounting(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(defclass thing (is-a USER) (slot n))")
	a, err := f.env.MakeInstance("([t1] of thing (n 1))")
	require.NoError(t, err)
	b, err := f.env.FindInstance("t1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.instanceRefs(a))

	require.NoError(t, a.Unmake())
	assert.False(t, b.Exists())
	assert.Empty(t, b.Name())
	assert.Empty(t, b.Class())
	assert.Equal(t, fmt.Sprintf("<Instance-%#x>", uint64(b.ptr)), b.String())

	a.Release()
	b.Release()
	assert.True(t, f.sim.Recycled(f.env.env, a.ptr))
}

// dropProxy creates a proxy the caller cannot reach.
func dropProxy(t *testing.T, env *Environment) engine.Ptr {
	fact, err := env.FindFact(1)
	require.NoError(t, err)
	return fact.ptr
}

func TestFinalizedProxiesReleaseOnNextCall(t *testing.T) {
	f := newFixture(t)
	kept, err := f.env.AssertString("(a 1)")
	require.NoError(t, err)

	ptr := dropProxy(t, f.env)
	assert.Equal(t, 2, f.sim.FactRefCount(f.env.env, ptr))

	require.Eventually(t, func() bool {
		goruntime.GC()
		return f.env.Pending() > 0
	}, 5*time.Second, 10*time.Millisecond)

	// Finalizers only queue; the engine sees the release on the next call.
	assert.Equal(t, 2, f.sim.FactRefCount(f.env.env, ptr))
	f.env.Rules()
	assert.Equal(t, 0, f.env.Pending())
	assert.Equal(t, 1, f.factRefs(kept))
	goruntime.KeepAlive(kept)
}

func TestFinalizerAfterCloseIsHarmless(t *testing.T) {
	f := newFixture(t)
	_, err := f.env.AssertString("(a 1)")
	require.NoError(t, err)
	dropProxy(t, f.env)
	require.NoError(t, f.env.Close())

	for i := 0; i < 3; i++ {
		goruntime.GC()
	}
	assert.Equal(t, 0, f.env.Pending())
}

func TestStaleProxyAcrossClear(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(deftemplate item (slot n))")
	fact, err := f.env.AssertFact("item", map[string]any{"n": 1})
	require.NoError(t, err)

	require.NoError(t, f.env.Clear())
	assert.False(t, fact.Exists())
	assert.Equal(t, int64(-1), fact.Index())
	fact.Release()
}

func TestEnvironmentsInParallel(t *testing.T) {
	shared := sim.New(sim.WithStdout(nil), sim.WithStderr(nil))

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			env, err := New(shared)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.DefineFunction(func(x int) int { return x + i }, "offset"); err != nil {
				return err
			}
			if err := env.Build("(defrule bump (n ?x) => (assert (m (offset ?x))))"); err != nil {
				return err
			}
			for n := 0; n < 10; n++ {
				if _, err := env.AssertString(fmt.Sprintf("(n %d)", n)); err != nil {
					return err
				}
			}
			fired, err := env.Run(-1)
			if err != nil {
				return err
			}
			if fired != 10 {
				return fmt.Errorf("env %d fired %d rules", i, fired)
			}
			got, err := env.Eval("(length$ (get-fact-list))")
			if err != nil {
				return err
			}
			if got != int64(20) {
				return fmt.Errorf("env %d has %v facts", i, got)
			}
			for _, fact := range env.Facts() {
				fact.Release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, shared.EnvironmentCount())
}
