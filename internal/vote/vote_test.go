package vote

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTally(t *testing.T) *Tally {
	t.Helper()
	tally, err := NewTally(t.TempDir(), nil, nil)
	require.NoError(t, err)
	return tally
}

func TestAddVote_Increments(t *testing.T) {
	tally := newTestTally(t)

	count, err := tally.AddVote("talk-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = tally.AddVote("talk-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.Equal(t, map[string]int{"talk-1": 2}, tally.List())
}

func TestRemoveVote_DecrementsToZero(t *testing.T) {
	tally := newTestTally(t)

	_, err := tally.AddVote("talk-1")
	require.NoError(t, err)

	count, err := tally.RemoveVote("talk-1")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestRemoveVote_AtZeroFails(t *testing.T) {
	tally := newTestTally(t)
	_, err := tally.RemoveVote("never-voted")
	require.ErrorIs(t, err, ErrNoVotes)
}

func TestNewTally_ReloadsPersistedVotesFromDisk(t *testing.T) {
	dir := t.TempDir()

	first, err := NewTally(dir, nil, nil)
	require.NoError(t, err)
	_, err = first.AddVote("talk-1")
	require.NoError(t, err)
	_, err = first.AddVote("talk-2")
	require.NoError(t, err)

	second, err := NewTally(dir, nil, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"talk-1": 1, "talk-2": 1}, second.List())
}
