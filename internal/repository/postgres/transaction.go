package postgres

import (
	"context"
	"database/sql"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"

	"github.com/shopspring/decimal"
)

const transactionColumns = `id, group_id, user_id, amount, kind, status, description, COALESCE(external_ref, ''),
	confirmation_code, failure_reason, reference_id, created_on, settled_on`

type transactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var referenceID sql.NullInt32
	var settledOn sql.NullTime
	err := row.Scan(&t.ID, &t.GroupID, &t.UserID, &t.Amount, &t.Kind, &t.Status, &t.Description, &t.ExternalRef,
		&t.ConfirmationCode, &t.FailureReason, &referenceID, &t.CreatedOn, &settledOn)
	if err != nil {
		return nil, err
	}
	if referenceID.Valid {
		t.ReferenceID = &referenceID.Int32
	}
	if settledOn.Valid {
		t.SettledOn = &settledOn.Time
	}
	return t, nil
}

func (r *transactionRepository) Append(ctx context.Context, t *domain.Transaction) error {
	logger.EnterMethod("transactionRepository.Append", "groupID", t.GroupID, "userID", t.UserID, "kind", t.Kind, "status", t.Status)

	if t.CreatedOn.IsZero() {
		t.CreatedOn = time.Now().UTC()
	}
	query := `INSERT INTO transactions (group_id, user_id, amount, kind, status, description, external_ref,
	              confirmation_code, failure_reason, reference_id, created_on, settled_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		t.GroupID, t.UserID, t.Amount, t.Kind, t.Status, t.Description, nullString(t.ExternalRef),
		t.ConfirmationCode, t.FailureReason, t.ReferenceID, t.CreatedOn, t.SettledOn,
	).Scan(&t.ID)
	if err != nil {
		logger.ExitMethodWithError("transactionRepository.Append", err, "groupID", t.GroupID, "kind", t.Kind)
		return err
	}

	logger.ExitMethod("transactionRepository.Append", "transactionID", t.ID)
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id int32) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *transactionRepository) GetByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_ref = $1`
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *transactionRepository) SetExternalRef(ctx context.Context, id int32, ref string) error {
	query := `UPDATE transactions SET external_ref = $2 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, ref)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (r *transactionRepository) Settle(ctx context.Context, t *domain.Transaction) error {
	logger.EnterMethod("transactionRepository.Settle", "transactionID", t.ID, "status", t.Status)

	if t.SettledOn == nil {
		now := time.Now().UTC()
		t.SettledOn = &now
	}
	query := `UPDATE transactions
	          SET status = $2, confirmation_code = $3, failure_reason = $4, settled_on = $5
	          WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, t.ID, t.Status, t.ConfirmationCode, t.FailureReason, t.SettledOn)
	if err != nil {
		logger.ExitMethodWithError("transactionRepository.Settle", err, "transactionID", t.ID)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		logger.ExitMethodWithError("transactionRepository.Settle", domain.ErrAlreadyProcessed, "transactionID", t.ID)
		return domain.ErrAlreadyProcessed
	}

	logger.ExitMethod("transactionRepository.Settle", "transactionID", t.ID)
	return nil
}

func (r *transactionRepository) sumCompleted(ctx context.Context, query string, args ...any) (domain.KindTotals, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := domain.KindTotals{}
	for rows.Next() {
		var kind domain.TransactionKind
		var sum decimal.Decimal
		if err := rows.Scan(&kind, &sum); err != nil {
			return nil, err
		}
		totals[kind] = sum
	}
	return totals, rows.Err()
}

func (r *transactionRepository) SumCompletedByMember(ctx context.Context, groupID, userID int32) (domain.KindTotals, error) {
	query := `SELECT kind, COALESCE(SUM(amount), 0) FROM transactions
	          WHERE group_id = $1 AND user_id = $2 AND status = 'completed'
	          GROUP BY kind`
	return r.sumCompleted(ctx, query, groupID, userID)
}

func (r *transactionRepository) SumCompletedByGroup(ctx context.Context, groupID int32) (domain.KindTotals, error) {
	query := `SELECT kind, COALESCE(SUM(amount), 0) FROM transactions
	          WHERE group_id = $1 AND status = 'completed'
	          GROUP BY kind`
	return r.sumCompleted(ctx, query, groupID)
}

func (r *transactionRepository) list(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (r *transactionRepository) ListByMember(ctx context.Context, groupID, userID int32) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE group_id = $1 AND user_id = $2 ORDER BY created_on DESC, id DESC`
	return r.list(ctx, query, groupID, userID)
}

func (r *transactionRepository) ListPendingBefore(ctx context.Context, kind domain.TransactionKind, before time.Time) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE kind = $1 AND status = 'pending' AND created_on < $2 ORDER BY id`
	return r.list(ctx, query, kind, before)
}
