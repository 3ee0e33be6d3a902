package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendstock/internal/infrastructure/storage/badger"
)

func TestVisitCommand_RefusedThenCommitted(t *testing.T) {
	dir, machineID := seedStore(t)

	out, err := execute(t, "done\ndo 1\ngrid\ndone\n",
		"visit", machineID.String(), "--store", "badger", "--badger-dir", dir, "--operator", "Dana")
	require.NoError(t, err)

	assert.Contains(t, out, "1 mandatory left, state open")
	assert.Contains(t, out, "cannot finish, still to do:\n  remove all from (0,0)\n")
	assert.Contains(t, out, "0 mandatory left, state reconcilable")
	assert.Contains(t, out, "depth 5")
	assert.Contains(t, out, "visit committed")

	store, err := badger.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	visits, err := store.Journal().Visits(context.Background(), machineID)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Contains(t, string(visits[0]), `"operator":"Dana"`)

	m, err := store.Machines().GetByID(context.Background(), machineID)
	require.NoError(t, err)
	assert.True(t, m.Live().At(0, 0).IsEmpty())
	assert.False(t, m.Restocking())
}

func TestVisitCommand_EndOfInputAbandons(t *testing.T) {
	dir, machineID := seedStore(t)

	out, err := execute(t, "do 9\nfrobnicate\n",
		"visit", machineID.String(), "--store", "badger", "--badger-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "UNKNOWN_INSTRUCTION")
	assert.Contains(t, out, `unknown command "frobnicate"`)
	assert.Contains(t, out, "visit abandoned, live layout unchanged")

	store, err := badger.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	m, err := store.Machines().GetByID(context.Background(), machineID)
	require.NoError(t, err)
	assert.False(t, m.Live().At(0, 0).IsEmpty())
	assert.False(t, m.Restocking())

	visits, err := store.Journal().Visits(context.Background(), machineID)
	require.NoError(t, err)
	assert.Empty(t, visits)
}
