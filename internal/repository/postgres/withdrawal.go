package postgres

import (
	"context"
	"database/sql"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"
)

const withdrawalColumns = `id, user_id, group_id, amount, description, status, admin_id, admin_comment,
	transaction_id, created_on, updated_on`

type withdrawalRepository struct {
	db DBTX
}

func NewWithdrawalRepository(db DBTX) repository.WithdrawalRepository {
	return &withdrawalRepository{db: db}
}

func scanWithdrawal(row scanner) (*domain.WithdrawalRequest, error) {
	w := &domain.WithdrawalRequest{}
	var adminID, transactionID sql.NullInt32
	err := row.Scan(&w.ID, &w.UserID, &w.GroupID, &w.Amount, &w.Description, &w.Status, &adminID, &w.AdminComment,
		&transactionID, &w.CreatedOn, &w.UpdatedOn)
	if err != nil {
		return nil, err
	}
	if adminID.Valid {
		w.AdminID = &adminID.Int32
	}
	if transactionID.Valid {
		w.TransactionID = &transactionID.Int32
	}
	return w, nil
}

func (r *withdrawalRepository) Create(ctx context.Context, w *domain.WithdrawalRequest) error {
	logger.EnterMethod("withdrawalRepository.Create", "groupID", w.GroupID, "userID", w.UserID, "amount", w.Amount.String())

	now := time.Now().UTC()
	w.CreatedOn, w.UpdatedOn = now, now
	query := `INSERT INTO withdrawal_requests (user_id, group_id, amount, description, status, admin_comment, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, w.UserID, w.GroupID, w.Amount, w.Description, w.Status, w.AdminComment, w.CreatedOn, w.UpdatedOn).Scan(&w.ID)
	if err != nil {
		logger.ExitMethodWithError("withdrawalRepository.Create", err, "groupID", w.GroupID, "userID", w.UserID)
		return err
	}

	logger.ExitMethod("withdrawalRepository.Create", "withdrawalID", w.ID)
	return nil
}

func (r *withdrawalRepository) GetByID(ctx context.Context, id int32) (*domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`
	w, err := scanWithdrawal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (r *withdrawalRepository) GetForUpdate(ctx context.Context, id int32) (*domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "withdrawal_requests", "withdrawalID", id)
	w, err := scanWithdrawal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (r *withdrawalRepository) Update(ctx context.Context, w *domain.WithdrawalRequest) error {
	logger.EnterMethod("withdrawalRepository.Update", "withdrawalID", w.ID, "status", w.Status)

	w.UpdatedOn = time.Now().UTC()
	query := `UPDATE withdrawal_requests
	          SET status = $2, admin_id = $3, admin_comment = $4, transaction_id = $5, updated_on = $6
	          WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, w.ID, w.Status, w.AdminID, w.AdminComment, w.TransactionID, w.UpdatedOn)
	if err == nil {
		err = expectOneRow(result)
	}
	if err != nil {
		logger.ExitMethodWithError("withdrawalRepository.Update", err, "withdrawalID", w.ID)
		return err
	}

	logger.ExitMethod("withdrawalRepository.Update", "withdrawalID", w.ID)
	return nil
}

func (r *withdrawalRepository) list(ctx context.Context, query string, args ...any) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *withdrawalRepository) ListByGroup(ctx context.Context, groupID int32, status domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	if status == "" {
		query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE group_id = $1 ORDER BY created_on DESC, id DESC`
		return r.list(ctx, query, groupID)
	}
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE group_id = $1 AND status = $2 ORDER BY created_on DESC, id DESC`
	return r.list(ctx, query, groupID, status)
}

func (r *withdrawalRepository) ListByUser(ctx context.Context, userID int32) ([]domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE user_id = $1 ORDER BY created_on DESC, id DESC`
	return r.list(ctx, query, userID)
}
