package contract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T, steps [][2]State) []HistoryRow {
	t.Helper()
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var rows []HistoryRow
	var prev *HistoryRow
	for i, step := range steps {
		row := HistoryRow{
			ID:         "row-" + string(rune('a'+i)),
			ContractID: "ctr-1",
			PrevState:  step[0],
			NewState:   step[1],
			Actor:      "BR-SP-2026-000000001-1a",
			CreatedAt:  created.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, Chain(prev, &row))
		rows = append(rows, row)
		prev = &rows[len(rows)-1]
	}
	return rows
}

func TestChainLinksRows(t *testing.T) {
	rows := buildChain(t, [][2]State{
		{StateDraft, StateActive},
		{StateActive, StateDisputed},
		{StateDisputed, StateDefensePeriod},
	})

	assert.Equal(t, uint64(1), rows[0].Sequence)
	assert.Equal(t, "genesis", rows[0].PrevHash)
	assert.True(t, strings.HasPrefix(rows[0].ContentHash, "sha256:"))
	for i := 1; i < len(rows); i++ {
		assert.Equal(t, uint64(i)+1, rows[i].Sequence)
		assert.Equal(t, rows[i-1].ContentHash, rows[i].PrevHash)
	}
}

func TestVerifyChain(t *testing.T) {
	rows := buildChain(t, [][2]State{
		{StateDraft, StateActive},
		{StateActive, StateCompleted},
	})
	require.NoError(t, VerifyChain(rows))
	require.NoError(t, VerifyChain(nil))
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	base := [][2]State{
		{StateDraft, StateActive},
		{StateActive, StateExpired},
		{StateExpired, StatePenalized},
	}

	t.Run("content edited", func(t *testing.T) {
		rows := buildChain(t, base)
		rows[1].Reason = "doctored"
		require.ErrorContains(t, VerifyChain(rows), "hash mismatch")
	})

	t.Run("row removed", func(t *testing.T) {
		rows := buildChain(t, base)
		rows = append(rows[:1], rows[2:]...)
		require.ErrorContains(t, VerifyChain(rows), "sequence")
	})

	t.Run("prev hash rewritten", func(t *testing.T) {
		rows := buildChain(t, base)
		rows[2].PrevHash = rows[0].ContentHash
		require.ErrorContains(t, VerifyChain(rows), "chain broken")
	})
}

func TestReplay(t *testing.T) {
	rows := buildChain(t, [][2]State{
		{StateDraft, StateActive},
		{StateActive, StateDisputed},
		{StateDisputed, StateDefensePeriod},
		{StateDefensePeriod, StatePenalized},
	})
	state, err := Replay(rows)
	require.NoError(t, err)
	assert.Equal(t, StatePenalized, state)

	state, err = Replay(nil)
	require.NoError(t, err)
	assert.Equal(t, StateDraft, state)
}

func TestReplayRejectsDiscontinuity(t *testing.T) {
	rows := buildChain(t, [][2]State{
		{StateDraft, StateActive},
		{StateDisputed, StateDefensePeriod},
	})
	_, err := Replay(rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects previous state")
}
