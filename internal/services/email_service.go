package services

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"authhub/internal/config"
)

type EmailService interface {
	SendVerificationEmail(to, username, verifyURL string) error
	SendPasswordResetEmail(to, username, resetURL string) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailService(cfg *config.EmailConfig) EmailService {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return &emailService{
		dialer: dialer,
		from:   cfg.FromEmail,
	}
}

func (s *emailService) SendVerificationEmail(to, username, verifyURL string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Please verify your email")

	body := fmt.Sprintf(`
		<h2>Welcome, %s!</h2>
		<p>Please confirm your email address by clicking the link below.
		The link expires in 20 minutes.</p>
		<p><a href="%s">Verify your email</a></p>
		<p>If the button does not work, copy this URL into your browser:<br>%s</p>
	`, username, verifyURL, verifyURL)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

func (s *emailService) SendPasswordResetEmail(to, username, resetURL string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Password reset request")

	body := fmt.Sprintf(`
		<h3>Hi %s,</h3>
		<p>We received a request to reset the password for your account.
		The link below expires in 20 minutes.</p>
		<p><a href="%s">Reset your password</a></p>
		<p>If you did not request this change, you can ignore this email.</p>
	`, username, resetURL)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}
