package postgres

import (
	"context"
	"database/sql"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"

	"github.com/lib/pq"
)

const loanColumns = `id, user_id, group_id, amount, purpose, interest_rate, duration_weeks, status,
	approved_by, approved_at, due_date, rejection_reason, created_on, updated_on`

const repaymentColumns = `id, loan_id, amount, amount_paid, due_date, status, paid_at`

type loanRepository struct {
	db DBTX
}

func NewLoanRepository(db DBTX) repository.LoanRepository {
	return &loanRepository{db: db}
}

func scanLoan(row scanner) (*domain.Loan, error) {
	l := &domain.Loan{}
	var approvedBy sql.NullInt32
	var approvedAt, dueDate sql.NullTime
	err := row.Scan(&l.ID, &l.UserID, &l.GroupID, &l.Amount, &l.Purpose, &l.InterestRate, &l.DurationWeeks, &l.Status,
		&approvedBy, &approvedAt, &dueDate, &l.RejectionReason, &l.CreatedOn, &l.UpdatedOn)
	if err != nil {
		return nil, err
	}
	if approvedBy.Valid {
		l.ApprovedBy = &approvedBy.Int32
	}
	if approvedAt.Valid {
		l.ApprovedAt = &approvedAt.Time
	}
	if dueDate.Valid {
		l.DueDate = &dueDate.Time
	}
	return l, nil
}

func scanRepayment(row scanner) (*domain.LoanRepayment, error) {
	p := &domain.LoanRepayment{}
	var paidAt sql.NullTime
	if err := row.Scan(&p.ID, &p.LoanID, &p.Amount, &p.AmountPaid, &p.DueDate, &p.Status, &paidAt); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return p, nil
}

func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	logger.EnterMethod("loanRepository.Create", "groupID", l.GroupID, "userID", l.UserID, "amount", l.Amount.String())

	now := time.Now().UTC()
	l.CreatedOn, l.UpdatedOn = now, now
	query := `INSERT INTO loans (user_id, group_id, amount, purpose, interest_rate, duration_weeks, status, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		l.UserID, l.GroupID, l.Amount, l.Purpose, l.InterestRate, l.DurationWeeks, l.Status, l.CreatedOn, l.UpdatedOn,
	).Scan(&l.ID)
	if err != nil {
		logger.ExitMethodWithError("loanRepository.Create", err, "groupID", l.GroupID, "userID", l.UserID)
		return err
	}

	logger.ExitMethod("loanRepository.Create", "loanID", l.ID)
	return nil
}

func (r *loanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (r *loanRepository) GetForUpdate(ctx context.Context, id int32) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "loans", "loanID", id)
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (r *loanRepository) Update(ctx context.Context, l *domain.Loan) error {
	logger.EnterMethod("loanRepository.Update", "loanID", l.ID, "status", l.Status)

	l.UpdatedOn = time.Now().UTC()
	query := `UPDATE loans
	          SET status = $2, approved_by = $3, approved_at = $4, due_date = $5, rejection_reason = $6, updated_on = $7
	          WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, l.ID, l.Status, l.ApprovedBy, l.ApprovedAt, l.DueDate, l.RejectionReason, l.UpdatedOn)
	if err == nil {
		err = expectOneRow(result)
	}
	if err != nil {
		logger.ExitMethodWithError("loanRepository.Update", err, "loanID", l.ID)
		return err
	}

	logger.ExitMethod("loanRepository.Update", "loanID", l.ID)
	return nil
}

func (r *loanRepository) list(ctx context.Context, query string, args ...any) ([]domain.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func (r *loanRepository) ListByUser(ctx context.Context, userID int32, status domain.LoanStatus) ([]domain.Loan, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+loanColumns+` FROM loans WHERE user_id = $1 ORDER BY created_on DESC, id DESC`, userID)
	}
	return r.list(ctx, `SELECT `+loanColumns+` FROM loans WHERE user_id = $1 AND status = $2 ORDER BY created_on DESC, id DESC`, userID, status)
}

func (r *loanRepository) ListByGroup(ctx context.Context, groupID int32, status domain.LoanStatus) ([]domain.Loan, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+loanColumns+` FROM loans WHERE group_id = $1 ORDER BY created_on DESC, id DESC`, groupID)
	}
	return r.list(ctx, `SELECT `+loanColumns+` FROM loans WHERE group_id = $1 AND status = $2 ORDER BY created_on DESC, id DESC`, groupID, status)
}

func (r *loanRepository) ListByStatuses(ctx context.Context, statuses []domain.LoanStatus) ([]domain.Loan, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = ANY($1) ORDER BY id`
	return r.list(ctx, query, pq.Array(values))
}

func (r *loanRepository) CreateRepayments(ctx context.Context, repayments []domain.LoanRepayment) error {
	if len(repayments) == 0 {
		return nil
	}
	logger.EnterMethod("loanRepository.CreateRepayments", "loanID", repayments[0].LoanID, "count", len(repayments))

	query := `INSERT INTO loan_repayments (loan_id, amount, amount_paid, due_date, status, paid_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	for i := range repayments {
		p := &repayments[i]
		err := r.db.QueryRowContext(ctx, query, p.LoanID, p.Amount, p.AmountPaid, p.DueDate, p.Status, p.PaidAt).Scan(&p.ID)
		if err != nil {
			logger.ExitMethodWithError("loanRepository.CreateRepayments", err, "loanID", p.LoanID, "index", i)
			return err
		}
	}

	logger.ExitMethod("loanRepository.CreateRepayments", "loanID", repayments[0].LoanID)
	return nil
}

func (r *loanRepository) ListRepayments(ctx context.Context, loanID int32) ([]domain.LoanRepayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM loan_repayments WHERE loan_id = $1 ORDER BY due_date, id`
	rows, err := r.db.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LoanRepayment
	for rows.Next() {
		p, err := scanRepayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *loanRepository) UpdateRepayment(ctx context.Context, p *domain.LoanRepayment) error {
	query := `UPDATE loan_repayments SET amount_paid = $2, status = $3, paid_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, p.ID, p.AmountPaid, p.Status, p.PaidAt)
	if err != nil {
		logger.ExitMethodWithError("loanRepository.UpdateRepayment", err, "repaymentID", p.ID)
		return err
	}
	return expectOneRow(result)
}
