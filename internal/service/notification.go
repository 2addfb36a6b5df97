package service

import (
	"context"
	"fmt"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"
)

type notificationService struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	notes, total, err := s.noteRepo.List(ctx, userID, pageSize, offset)
	if err != nil {
		return nil, 0, persistence("list notifications", err)
	}
	return notes, total, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, notificationID int32) error {
	return persistence("mark notification read", s.noteRepo.MarkAsRead(ctx, notificationID, userID))
}

type notificationDispatcher struct {
	noteRepo repository.NotificationRepository
	userRepo repository.UserRepository
	emailSvc EmailService
}

// NewNotificationDispatcher stores each event as an in-app notification and
// then mails it to the recipient.
func NewNotificationDispatcher(noteRepo repository.NotificationRepository, userRepo repository.UserRepository, emailSvc EmailService) NotificationDispatcher {
	return &notificationDispatcher{noteRepo: noteRepo, userRepo: userRepo, emailSvc: emailSvc}
}

func (d *notificationDispatcher) Emit(ctx context.Context, note *domain.Notification) error {
	if err := d.noteRepo.Create(ctx, note); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	recipient, err := d.userRepo.GetByID(ctx, note.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", note.RecipientID, err)
	}
	if recipient.Email == "" {
		return nil
	}
	if err := d.emailSvc.SendNotification(ctx, recipient.Email, recipient.Name, note.Title, note.Message); err != nil {
		return fmt.Errorf("email notification %d: %w", note.ID, err)
	}
	if err := d.noteRepo.MarkEmailed(ctx, note.ID); err != nil {
		return fmt.Errorf("mark notification %d emailed: %w", note.ID, err)
	}
	note.Emailed = true
	return nil
}

// notifyAll emits every note and logs failures. It runs after commit, so it
// must never surface an error to the caller.
func notifyAll(ctx context.Context, dispatcher NotificationDispatcher, notes ...*domain.Notification) {
	if dispatcher == nil {
		return
	}
	for _, note := range notes {
		if err := dispatcher.Emit(ctx, note); err != nil {
			logger.Swallowed("notify", err, "kind", note.Kind, "recipient", note.RecipientID, "group_id", note.GroupID)
		}
	}
}

// adminNotes builds one copy of note per group admin. A failure to look the
// admins up is logged and yields no notes.
func adminNotes(ctx context.Context, members repository.MembershipRepository, template domain.Notification) []*domain.Notification {
	adminIDs, err := members.ListAdminIDs(ctx, template.GroupID)
	if err != nil {
		logger.Swallowed("list group admins", err, "group_id", template.GroupID)
		return nil
	}
	notes := make([]*domain.Notification, 0, len(adminIDs))
	for _, id := range adminIDs {
		note := template
		note.RecipientID = id
		notes = append(notes, &note)
	}
	return notes
}
