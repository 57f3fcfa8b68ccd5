package services

import (
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/virtuallibrarycard/vlc/models"
)

// EmailAttachment is a file attached to an outgoing e-mail, such as the bulk
// upload report spreadsheet.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailProvider interface for e-mail delivery
type EmailProvider interface {
	SendEmail(to []string, subject, body string, attachments ...EmailAttachment) error
}

// NotificationService sends the system's outbound e-mail. All sends are
// best-effort from the caller's point of view: card issuance never rolls back
// because a mail could not be delivered.
type NotificationService interface {
	SendVerificationEmail(library *models.Library, patron *models.Patron, verifyURL string) error
	SendWelcomeEmail(library *models.Library, patron *models.Patron, cardNumber string) error
	SendAdminCardNumbersAlert(library *models.Library, adminUsers, superUsers []*models.Patron) error
	SendBulkUploadReport(library *models.Library, admin *models.Patron, report EmailAttachment) error
	SendExpirationReminder(library *models.Library, patron *models.Patron, card *models.LibraryCard) error
}

// NotificationServiceImpl implements NotificationService
type NotificationServiceImpl struct {
	provider EmailProvider
	logger   zerolog.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(provider EmailProvider, logger zerolog.Logger) NotificationService {
	return &NotificationServiceImpl{
		provider: provider,
		logger:   logger,
	}
}

// SendVerificationEmail sends the e-mail verification link, branded with the
// patron's library name.
func (s *NotificationServiceImpl) SendVerificationEmail(library *models.Library, patron *models.Patron, verifyURL string) error {
	subject := fmt.Sprintf("%s | Verify your email address", library.Name)
	body := fmt.Sprintf(
		"Hello %s,\n\nPlease verify your email address to activate your %s library card:\n\n%s\n",
		patron.SmartName(), library.Name, verifyURL,
	)
	return s.provider.SendEmail([]string{patron.Email}, subject, body)
}

// SendWelcomeEmail tells a patron their card is ready.
func (s *NotificationServiceImpl) SendWelcomeEmail(library *models.Library, patron *models.Patron, cardNumber string) error {
	subject := fmt.Sprintf("%s | Your library card", library.Name)
	body := fmt.Sprintf(
		"Hello %s,\n\nWelcome to %s. Your %s number is %s.\n",
		patron.SmartName(), library.Name, library.BarcodeText, cardNumber,
	)
	return s.provider.SendEmail([]string{patron.Email}, subject, body)
}

// SendAdminCardNumbersAlert warns library admins and superusers that the
// library's card number sequence has crossed the configured threshold.
func (s *NotificationServiceImpl) SendAdminCardNumbersAlert(library *models.Library, adminUsers, superUsers []*models.Patron) error {
	recipients := make([]string, 0, len(adminUsers)+len(superUsers))
	seen := make(map[string]struct{})
	for _, p := range append(adminUsers, superUsers...) {
		if _, ok := seen[p.Email]; ok {
			continue
		}
		seen[p.Email] = struct{}{}
		recipients = append(recipients, p.Email)
	}
	if len(recipients) == 0 {
		s.logger.Warn().Str("library", library.Identifier).Msg("card numbers alert has no recipients")
		return nil
	}

	subject := fmt.Sprintf("%s | Card number sequence alert", library.Name)
	body := fmt.Sprintf(
		"The card number sequence for library %q (prefix %s) has reached its alert threshold.\n"+
			"Review the sequence configuration before the number space runs out.\n",
		library.Name, library.Prefix,
	)
	return s.provider.SendEmail(recipients, subject, body)
}

// SendBulkUploadReport mails the per-row outcome sheet of a bulk upload to
// the admin who started it.
func (s *NotificationServiceImpl) SendBulkUploadReport(library *models.Library, admin *models.Patron, report EmailAttachment) error {
	if admin == nil {
		s.logger.Error().Str("library", library.Identifier).Msg("no admin user to send the upload report to")
		return nil
	}
	subject := fmt.Sprintf("%s | Bulk upload report", library.Name)
	body := "The bulk card upload has finished. The per-row results are attached.\n"
	return s.provider.SendEmail([]string{admin.Email}, subject, body, report)
}

// SendExpirationReminder tells a patron their card is about to expire.
func (s *NotificationServiceImpl) SendExpirationReminder(library *models.Library, patron *models.Patron, card *models.LibraryCard) error {
	subject := fmt.Sprintf("%s | Your library card is about to expire", library.Name)
	body := fmt.Sprintf(
		"Hello %s,\n\nYour %s card %s expires on %s. Contact the library to renew it.\n",
		patron.SmartName(), library.Name, card.Number,
		card.ExpirationDate.Format("January 2, 2006"),
	)
	return s.provider.SendEmail([]string{patron.Email}, subject, body)
}

// SMTPEmailProvider delivers mail through a plain SMTP relay.
type SMTPEmailProvider struct {
	addr      string
	auth      smtp.Auth
	fromEmail string
}

// NewSMTPEmailProvider creates an SMTP-backed provider
func NewSMTPEmailProvider(host string, port int, username, password, fromEmail string) EmailProvider {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPEmailProvider{
		addr:      fmt.Sprintf("%s:%d", host, port),
		auth:      auth,
		fromEmail: fromEmail,
	}
}

func (p *SMTPEmailProvider) SendEmail(to []string, subject, body string, attachments ...EmailAttachment) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	const boundary = "vlc-mail-boundary"

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", p.fromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		msg.WriteString(body)
	} else {
		fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)
		fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, body)
		for _, att := range attachments {
			fmt.Fprintf(&msg, "--%s\r\n", boundary)
			fmt.Fprintf(&msg, "Content-Type: %s\r\n", att.ContentType)
			fmt.Fprintf(&msg, "Content-Disposition: attachment; filename=%q\r\n", att.Filename)
			msg.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
			msg.WriteString(encodeBase64Wrapped(att.Data))
			msg.WriteString("\r\n")
		}
		fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	}

	return smtp.SendMail(p.addr, p.auth, p.fromEmail, to, []byte(msg.String()))
}

// encodeBase64Wrapped base64-encodes data with 76-character lines per RFC 2045.
func encodeBase64Wrapped(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	return b.String()
}

// MockEmailProvider records sent mail in memory; used in tests and local runs.
type MockEmailProvider struct {
	mu   sync.Mutex
	Sent []MockEmail
}

type MockEmail struct {
	To          []string
	Subject     string
	Body        string
	Attachments []EmailAttachment
}

// NewMockEmailProvider creates an in-memory provider
func NewMockEmailProvider() *MockEmailProvider {
	return &MockEmailProvider{}
}

func (p *MockEmailProvider) SendEmail(to []string, subject, body string, attachments ...EmailAttachment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Sent = append(p.Sent, MockEmail{To: to, Subject: subject, Body: body, Attachments: attachments})
	return nil
}

// SentTo returns the messages delivered to an address.
func (p *MockEmailProvider) SentTo(email string) []MockEmail {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []MockEmail
	for _, m := range p.Sent {
		for _, t := range m.To {
			if t == email {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
