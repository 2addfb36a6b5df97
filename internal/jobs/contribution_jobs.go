package jobs

import (
	"context"
	"errors"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/metrics"
)

const expiredReason = "expired"

// ExpireStaleContributions fails pending contributions whose payment callback
// never arrived within the configured window.
func (jr *JobRunner) ExpireStaleContributions() {
	jr.runWithRecovery("ExpireStaleContributions", jr.expireStaleContributions)
}

func (jr *JobRunner) expireStaleContributions(ctx context.Context) error {
	cutoff := jr.now().Add(-time.Duration(jr.config.Contributions.PendingExpiryHours) * time.Hour)
	txRepo := jr.store.Repos().Transactions

	stale, err := txRepo.ListPendingBefore(ctx, domain.TransactionKindContribution, cutoff)
	if err != nil {
		return wrapf(err, "list stale contributions")
	}

	expired := 0
	for i := range stale {
		entry := &stale[i]
		entry.Status = domain.TransactionStatusFailed
		entry.FailureReason = expiredReason
		if err := txRepo.Settle(ctx, entry); err != nil {
			// A callback settled it in the meantime.
			if errors.Is(err, domain.ErrAlreadyProcessed) {
				continue
			}
			logger.Error("Failed to expire contribution", "transaction_id", entry.ID, "error", err)
			continue
		}
		expired++
		metrics.ContributionSettlements.WithLabelValues(string(entry.Status)).Inc()
		logger.Debug("Expired contribution",
			"transaction_id", entry.ID,
			"external_ref", entry.ExternalRef,
			"created_on", entry.CreatedOn)
	}

	logger.Info("Expired stale contributions", "count", expired, "checked", len(stale))
	return nil
}
