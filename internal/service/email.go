package service

import (
	"context"
	"fmt"
	"html"

	"chama-backend/internal/logger"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendGridEmailService struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &sendGridEmailService{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *sendGridEmailService) SendNotification(ctx context.Context, toEmail, toName, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(toName, toEmail)
	htmlContent := fmt.Sprintf("<html><body><p>Hello %s,</p><p>%s</p></body></html>",
		html.EscapeString(toName), html.EscapeString(body))

	message := mail.NewSingleEmail(from, subject, recipient, body, htmlContent)

	logger.ExternalServiceCall("sendgrid", "send", "to", toEmail, "subject", subject)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "send", err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "send", err)
		return err
	}
	logger.ExternalServiceResult("sendgrid", "send", nil, "status", response.StatusCode)
	return nil
}

type logEmailService struct{}

// NewLogEmailService is used when no SendGrid key is configured. It only logs.
func NewLogEmailService() EmailService {
	return logEmailService{}
}

func (logEmailService) SendNotification(ctx context.Context, toEmail, toName, subject, body string) error {
	logger.InfoContext(ctx, "📧 Email delivery disabled", "to", toEmail, "subject", subject)
	return nil
}
