package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"
)

type membershipRepository struct {
	db DBTX
}

func NewMembershipRepository(db DBTX) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Add(ctx context.Context, m *domain.GroupMember) error {
	logger.EnterMethod("membershipRepository.Add", "groupID", m.GroupID, "userID", m.UserID, "role", m.Role)

	if m.JoinedOn.IsZero() {
		m.JoinedOn = time.Now().UTC()
	}
	query := `INSERT INTO group_members (group_id, user_id, role, joined_on) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (group_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := r.db.ExecContext(ctx, query, m.GroupID, m.UserID, m.Role, m.JoinedOn)
	if err != nil {
		logger.ExitMethodWithError("membershipRepository.Add", err, "groupID", m.GroupID, "userID", m.UserID)
		return err
	}

	logger.ExitMethod("membershipRepository.Add", "groupID", m.GroupID, "userID", m.UserID)
	return nil
}

func (r *membershipRepository) GetRole(ctx context.Context, groupID, userID int32) (domain.MemberRole, error) {
	var role domain.MemberRole
	query := `SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MemberRoleNone, nil
	}
	if err != nil {
		return domain.MemberRoleNone, err
	}
	return role, nil
}

func (r *membershipRepository) ListMembers(ctx context.Context, groupID int32) ([]domain.GroupMember, error) {
	query := `SELECT group_id, user_id, role, joined_on FROM group_members WHERE group_id = $1 ORDER BY joined_on, user_id`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.GroupMember
	for rows.Next() {
		var m domain.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedOn); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *membershipRepository) ListAdminIDs(ctx context.Context, groupID int32) ([]int32, error) {
	query := `SELECT user_id FROM group_members WHERE group_id = $1 AND role = $2 ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query, groupID, domain.MemberRoleAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
