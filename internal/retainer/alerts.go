package retainer

import "mizan/internal/models"

// NeedsLowBalanceAlert reports whether the account balance has fallen to or
// below its configured floor. Advisory only; the floor is never enforced.
func NeedsLowBalanceAlert(a *models.RetainerAccount) bool {
	return a.IsActive() && a.CurrentBalance.LessThanOrEqual(a.MinimumBalance)
}

// NeedsReplenishment reports whether the auto-replenish signal fires. The
// engine raises the signal for an external process to act on; it performs no
// fund movement itself.
func NeedsReplenishment(a *models.RetainerAccount) bool {
	return a.IsActive() &&
		a.AutoReplenish &&
		a.ReplenishThreshold != nil &&
		a.CurrentBalance.LessThanOrEqual(*a.ReplenishThreshold)
}
