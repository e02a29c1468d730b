package notify

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/resend/resend-go/v2"
)

// Email is one outgoing message.
type Email struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Attachment is a file sent with an Email.
type Attachment struct {
	Filename string
	Content  []byte
}

// EmailSender sends a prepared Email.
type EmailSender interface {
	Send(ctx context.Context, e Email) error
}

// ResendSender sends email through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender returns a sender using apiKey and the default from address.
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

// Send implements EmailSender.
func (s *ResendSender) Send(ctx context.Context, e Email) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{e.To},
		Subject: e.Subject,
		Html:    e.HTML,
	}
	for _, a := range e.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Filename: a.Filename,
			Content:  a.Content,
		})
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	return nil
}

// EmailSink mails registrants their invoice on commit. Other kinds and
// registrations without an email address are skipped.
type EmailSink struct {
	sender  EmailSender
	subject string
}

// NewEmailSink returns a sink sending through sender. subject may contain
// one %s for the invoice id.
func NewEmailSink(sender EmailSender, subject string) *EmailSink {
	if subject == "" {
		subject = "Invoice %s"
	}
	return &EmailSink{sender: sender, subject: subject}
}

// Notify implements Sink.
func (s *EmailSink) Notify(ctx context.Context, n Notification) error {
	if n.Kind != KindRegistered || n.Registration.Email == "" {
		return nil
	}
	e := Email{
		To:      n.Registration.Email,
		Subject: s.formatSubject(n.Registration.InvoiceID),
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(n.Summary), "\n", "<br>\n") + "</p>",
	}
	if n.Attachment != "" {
		data, err := os.ReadFile(n.Attachment)
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
		e.Attachments = []Attachment{{Filename: filepath.Base(n.Attachment), Content: data}}
	}
	return s.sender.Send(ctx, e)
}

func (s *EmailSink) formatSubject(invoiceID string) string {
	if strings.Contains(s.subject, "%s") {
		return fmt.Sprintf(s.subject, invoiceID)
	}
	return s.subject
}
