package integration

import (
	"context"
	"testing"

	"github.com/quillscript/quill/cas"
	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/interp"
	"github.com/quillscript/quill/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLiteral(t *testing.T, code string) *interp.Machine {
	t.Helper()
	m, err := interp.RunLiteral(context.Background(), host.NewEnvironment(host.WithOutput(nil)), code)
	require.NoError(t, err)
	return m
}

// TestCAS_SimpleProgram stores the final variables of a small program and
// reads them back.
func TestCAS_SimpleProgram(t *testing.T) {
	m := runLiteral(t, "var x = 5 + 3\n(long) y = x * 2\nvar s = \"ab\" * 3")

	store := cas.NewMemoryCAS()
	h, err := store.Put(m.Store)
	require.NoError(t, err)
	assert.True(t, store.Has(h))

	got, err := cas.Retrieve[*interp.Store](store, h)
	require.NoError(t, err)
	x, ok := got.Get("x")
	require.True(t, ok)
	assert.Equal(t, vm.IntValue(8), x)
	s, _ := got.Get("s")
	assert.Equal(t, vm.RepeatedValue{Base: "ab", Count: 3}, s)
	assert.Equal(t, vm.TypeNone, got.TypeOf("x"))
	assert.Equal(t, vm.TypeLong, got.TypeOf("y"))
}

// TestCAS_LoopProgram checks that equal end states hash equally no matter
// how the program got there.
func TestCAS_LoopProgram(t *testing.T) {
	looped := runLiteral(t, "var n = 0\nloop(4)\n  n = n + 2")
	direct := runLiteral(t, "var n = 8")
	other := runLiteral(t, "var n = 9")

	store := cas.NewLRUCache(cas.NewMemoryCAS(), 16)
	h1, err := store.Put(looped.Store)
	require.NoError(t, err)
	h2, err := store.Put(direct.Store)
	require.NoError(t, err)
	h3, err := store.Put(other.Store)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

// TestCAS_SnapshotMatchesStore checks that a store survives both the
// msgpack snapshot and the content-addressed form unchanged.
func TestCAS_SnapshotMatchesStore(t *testing.T) {
	m := runLiteral(t, "var (double) d = 1.5\nvar b = true\nvar z = null\nvar u")

	snap, err := m.Store.Snapshot()
	require.NoError(t, err)

	store := cas.NewMemoryCAS()
	h, err := store.Put(m.Store)
	require.NoError(t, err)
	fromCAS, err := cas.Retrieve[*interp.Store](store, h)
	require.NoError(t, err)

	again, err := fromCAS.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}
