package postgres

import (
	"context"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"
)

type loanSettingsRepository struct {
	db DBTX
}

func NewLoanSettingsRepository(db DBTX) repository.LoanSettingsRepository {
	return &loanSettingsRepository{db: db}
}

func (r *loanSettingsRepository) Get(ctx context.Context, groupID int32) (*domain.LoanSettings, error) {
	query := `SELECT group_id, max_loan_multiplier, base_interest_rate, min_repayment_period, max_repayment_period,
	                 late_penalty_rate, updated_on
	          FROM group_loan_settings WHERE group_id = $1`
	s := &domain.LoanSettings{}
	err := r.db.QueryRowContext(ctx, query, groupID).Scan(&s.GroupID, &s.MaxLoanMultiplier, &s.BaseInterestRate,
		&s.MinRepaymentWeeks, &s.MaxRepaymentWeeks, &s.LatePenaltyRate, &s.UpdatedOn)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *loanSettingsRepository) CreateIfMissing(ctx context.Context, s *domain.LoanSettings) error {
	logger.EnterMethod("loanSettingsRepository.CreateIfMissing", "groupID", s.GroupID)

	s.UpdatedOn = time.Now().UTC()
	query := `INSERT INTO group_loan_settings (group_id, max_loan_multiplier, base_interest_rate, min_repayment_period,
	              max_repayment_period, late_penalty_rate, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (group_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, s.GroupID, s.MaxLoanMultiplier, s.BaseInterestRate, s.MinRepaymentWeeks,
		s.MaxRepaymentWeeks, s.LatePenaltyRate, s.UpdatedOn)
	if err != nil {
		logger.ExitMethodWithError("loanSettingsRepository.CreateIfMissing", err, "groupID", s.GroupID)
		return err
	}

	logger.ExitMethod("loanSettingsRepository.CreateIfMissing", "groupID", s.GroupID)
	return nil
}

func (r *loanSettingsRepository) Update(ctx context.Context, s *domain.LoanSettings) error {
	logger.EnterMethod("loanSettingsRepository.Update", "groupID", s.GroupID)

	s.UpdatedOn = time.Now().UTC()
	query := `UPDATE group_loan_settings
	          SET max_loan_multiplier = $2, base_interest_rate = $3, min_repayment_period = $4,
	              max_repayment_period = $5, late_penalty_rate = $6, updated_on = $7
	          WHERE group_id = $1`
	result, err := r.db.ExecContext(ctx, query, s.GroupID, s.MaxLoanMultiplier, s.BaseInterestRate, s.MinRepaymentWeeks,
		s.MaxRepaymentWeeks, s.LatePenaltyRate, s.UpdatedOn)
	if err == nil {
		err = expectOneRow(result)
	}
	if err != nil {
		logger.ExitMethodWithError("loanSettingsRepository.Update", err, "groupID", s.GroupID)
		return err
	}

	logger.ExitMethod("loanSettingsRepository.Update", "groupID", s.GroupID)
	return nil
}
