package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"
)

type notificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	logger.EnterMethod("notificationRepository.Create", "recipientID", n.RecipientID, "groupID", n.GroupID, "kind", n.Kind)

	query := `INSERT INTO notifications (recipient_id, sender_id, group_id, kind, title, message, reference_id,
	              reference_amount, is_read, emailed, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	logger.DatabaseCall("INSERT", "notifications", "recipientID", n.RecipientID, "groupID", n.GroupID)

	if n.CreatedOn.IsZero() {
		n.CreatedOn = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, query, n.RecipientID, n.SenderID, n.GroupID, n.Kind, n.Title, n.Message,
		n.ReferenceID, n.ReferenceAmount, n.IsRead, n.Emailed, n.CreatedOn).Scan(&n.ID)
	logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)

	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "recipientID", n.RecipientID, "groupID", n.GroupID)
	} else {
		logger.ExitMethod("notificationRepository.Create", "notificationID", n.ID)
	}
	return err
}

func (r *notificationRepository) List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	query := `SELECT id, recipient_id, sender_id, group_id, kind, title, message, reference_id, reference_amount,
	                 is_read, emailed, created_on
	          FROM notifications WHERE recipient_id = $1 ORDER BY created_on DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var senderID, referenceID sql.NullInt32
		if err := rows.Scan(&n.ID, &n.RecipientID, &senderID, &n.GroupID, &n.Kind, &n.Title, &n.Message, &referenceID,
			&n.ReferenceAmount, &n.IsRead, &n.Emailed, &n.CreatedOn); err != nil {
			return nil, 0, err
		}
		if senderID.Valid {
			n.SenderID = &senderID.Int32
		}
		if referenceID.Valid {
			n.ReferenceID = &referenceID.Int32
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM notifications WHERE recipient_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&count); err != nil {
		return nil, 0, err
	}
	return notes, count, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int32) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("notification %d: %w", id, err)
	}
	return nil
}

func (r *notificationRepository) MarkEmailed(ctx context.Context, id int32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications SET emailed = TRUE WHERE id = $1`, id)
	return err
}
