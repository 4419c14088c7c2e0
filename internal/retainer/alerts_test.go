package retainer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mizan/internal/models"
	"mizan/internal/retainer"
)

func TestNeedsLowBalanceAlert(t *testing.T) {
	acct := &models.RetainerAccount{
		Status:         models.RetainerStatusActive,
		CurrentBalance: dec(500),
		MinimumBalance: dec(500),
	}
	assert.True(t, retainer.NeedsLowBalanceAlert(acct), "at the floor counts as low")

	acct.CurrentBalance = dec(501)
	assert.False(t, retainer.NeedsLowBalanceAlert(acct))

	acct.CurrentBalance = dec(100)
	acct.Status = models.RetainerStatusRefunded
	assert.False(t, retainer.NeedsLowBalanceAlert(acct), "refunded accounts do not alert")
}

func TestNeedsReplenishment(t *testing.T) {
	threshold := dec(300)
	acct := &models.RetainerAccount{
		Status:             models.RetainerStatusActive,
		CurrentBalance:     dec(300),
		AutoReplenish:      true,
		ReplenishThreshold: &threshold,
	}
	assert.True(t, retainer.NeedsReplenishment(acct))

	// The signal depends on the toggle, not just the balance.
	acct.AutoReplenish = false
	assert.False(t, retainer.NeedsReplenishment(acct))

	acct.AutoReplenish = true
	acct.ReplenishThreshold = nil
	assert.False(t, retainer.NeedsReplenishment(acct), "no threshold configured")

	acct.ReplenishThreshold = &threshold
	acct.CurrentBalance = dec(301)
	assert.False(t, retainer.NeedsReplenishment(acct))
}
