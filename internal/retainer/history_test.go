package retainer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mizan/internal/models"
	"mizan/internal/retainer"
)

func TestHistoryMergesNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	acct := &models.RetainerAccount{
		Deposits: []models.DepositEntry{
			{Seq: 1, Date: base, Amount: dec(1000), BalanceAfter: dec(1000)},
			{Seq: 4, Date: base.Add(3 * time.Hour), Amount: dec(300), BalanceAfter: dec(900)},
		},
		Consumptions: []models.ConsumptionEntry{
			{Seq: 2, Date: base.Add(1 * time.Hour), Amount: dec(250), BalanceAfter: dec(750)},
			{Seq: 3, Date: base.Add(2 * time.Hour), Amount: dec(150), BalanceAfter: dec(600)},
		},
	}

	view := retainer.NewHistoryView(acct)
	entries := view.Entries()
	require.Len(t, entries, 4)

	assert.Equal(t, []int64{4, 3, 2, 1}, []int64{entries[0].Seq, entries[1].Seq, entries[2].Seq, entries[3].Seq})

	// Deposits positive, consumptions negative.
	assert.True(t, entries[0].Amount.Equal(dec(300)))
	assert.True(t, entries[1].Amount.Equal(dec(-150)))
	assert.True(t, entries[2].Amount.Equal(dec(-250)))
	assert.True(t, entries[3].Amount.Equal(dec(1000)))

	assert.True(t, view.SignedSum().Equal(dec(900)))
}

func TestHistoryTiebreakOnEqualTimestamps(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	acct := &models.RetainerAccount{
		Deposits: []models.DepositEntry{
			{Seq: 1, Date: ts, Amount: dec(100)},
			{Seq: 3, Date: ts, Amount: dec(50)},
		},
		Consumptions: []models.ConsumptionEntry{
			{Seq: 2, Date: ts, Amount: dec(25)},
		},
	}

	// The date alone cannot order these; the append sequence must.
	entries := retainer.NewHistoryView(acct).Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].Seq)
	assert.Equal(t, int64(2), entries[1].Seq)
	assert.Equal(t, int64(1), entries[2].Seq)
}

func TestHistoryIteratorIsRestartable(t *testing.T) {
	ts := time.Now().UTC()
	acct := &models.RetainerAccount{
		Deposits: []models.DepositEntry{
			{Seq: 1, Date: ts, Amount: dec(100)},
			{Seq: 2, Date: ts.Add(time.Minute), Amount: dec(200)},
		},
	}

	view := retainer.NewHistoryView(acct)

	first := 0
	for range view.All() {
		first++
		break // abandon mid-iteration
	}
	assert.Equal(t, 1, first)

	second := 0
	for range view.All() {
		second++
	}
	assert.Equal(t, 2, second)
}

func TestHistoryEmptyAccount(t *testing.T) {
	view := retainer.NewHistoryView(&models.RetainerAccount{})
	assert.Equal(t, 0, view.Len())
	assert.True(t, view.SignedSum().IsZero())
}
