package postgres

import (
	"context"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"

	"github.com/shopspring/decimal"
)

const groupColumns = `id, name, description, target_amount, current_amount, created_by, created_on`

type groupRepository struct {
	db DBTX
}

func NewGroupRepository(db DBTX) repository.GroupRepository {
	return &groupRepository{db: db}
}

func scanGroup(row scanner) (*domain.Group, error) {
	g := &domain.Group{}
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.TargetAmount, &g.CurrentAmount, &g.CreatedBy, &g.CreatedOn)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *groupRepository) Create(ctx context.Context, g *domain.Group) error {
	logger.EnterMethod("groupRepository.Create", "name", g.Name, "createdBy", g.CreatedBy)

	query := `INSERT INTO groups (name, description, target_amount, current_amount, created_by, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if g.CreatedOn.IsZero() {
		g.CreatedOn = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, query, g.Name, g.Description, g.TargetAmount, g.CurrentAmount, g.CreatedBy, g.CreatedOn).Scan(&g.ID)
	if err != nil {
		logger.ExitMethodWithError("groupRepository.Create", err, "name", g.Name)
		return err
	}

	logger.ExitMethod("groupRepository.Create", "groupID", g.ID)
	return nil
}

func (r *groupRepository) GetByID(ctx context.Context, id int32) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	g, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

func (r *groupRepository) GetForUpdate(ctx context.Context, id int32) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "groups", "groupID", id)
	g, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

func (r *groupRepository) AdjustCurrentAmount(ctx context.Context, id int32, delta decimal.Decimal) error {
	logger.EnterMethod("groupRepository.AdjustCurrentAmount", "groupID", id, "delta", delta.String())

	query := `UPDATE groups SET current_amount = current_amount + $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, delta)
	if err == nil {
		err = expectOneRow(result)
	}
	if err != nil {
		logger.ExitMethodWithError("groupRepository.AdjustCurrentAmount", err, "groupID", id)
		return err
	}

	logger.ExitMethod("groupRepository.AdjustCurrentAmount", "groupID", id)
	return nil
}

func (r *groupRepository) List(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}
