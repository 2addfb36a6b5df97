package jobs

import (
	"context"

	"chama-backend/internal/logger"
	"chama-backend/internal/metrics"
)

// ReconcileGroupBalances compares every group's cached current amount with the
// total derived from its completed journal entries. Drift is reported, never
// corrected.
func (jr *JobRunner) ReconcileGroupBalances() {
	jr.runWithRecovery("ReconcileGroupBalances", jr.reconcileGroupBalances)
}

func (jr *JobRunner) reconcileGroupBalances(ctx context.Context) error {
	repos := jr.store.Repos()
	groups, err := repos.Groups.List(ctx)
	if err != nil {
		return wrapf(err, "list groups")
	}

	drifted := 0
	for _, g := range groups {
		totals, err := repos.Transactions.SumCompletedByGroup(ctx, g.ID)
		if err != nil {
			logger.Error("Failed to sum group journal", "group_id", g.ID, "error", err)
			continue
		}
		expected := totals.GroupFunds()
		drift := g.CurrentAmount.Sub(expected)
		metrics.GroupBalanceDrift.WithLabelValues(metrics.GroupLabel(g.ID)).Set(drift.InexactFloat64())
		if drift.IsZero() {
			continue
		}
		drifted++
		logger.Warn("Group balance drift detected",
			"group_id", g.ID,
			"current_amount", g.CurrentAmount.StringFixed(2),
			"journal_total", expected.StringFixed(2),
			"drift", drift.StringFixed(2))
	}

	logger.Info("Reconciled group balances", "groups", len(groups), "drifted", drifted)
	return nil
}
