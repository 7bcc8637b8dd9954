// Package notify sends plain-text replies to the senders of scanned documents.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-message/mail"
)

// UserAgent identifies this service in outgoing mail
const UserAgent = "PDF Processor"

// Notification is a reply to one inbound message
type Notification struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string // Message-ID of the original message, without angle brackets
}

// Transport delivers a composed message
type Transport interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// Notifier composes and sends notifications
type Notifier struct {
	fromName  string
	fromEmail string
	transport Transport
	logger    *slog.Logger
	now       func() time.Time
}

// NewNotifier creates a notifier sending as "fromName" <fromEmail>
func NewNotifier(fromName, fromEmail string, transport Transport, logger *slog.Logger) *Notifier {
	return &Notifier{
		fromName:  fromName,
		fromEmail: fromEmail,
		transport: transport,
		logger:    logger.With("component", "notifier"),
		now:       time.Now,
	}
}

// Send composes n and hands it to the transport once
func (n *Notifier) Send(ctx context.Context, notice Notification) error {
	msg, err := n.Compose(notice)
	if err != nil {
		return err
	}

	if err := n.transport.Send(ctx, n.fromEmail, []string{notice.To}, msg); err != nil {
		return fmt.Errorf("failed to send notification to %s: %w", notice.To, err)
	}

	n.logger.Info("notification sent", "to", notice.To, "subject", notice.Subject)
	return nil
}

// Compose renders notice as an RFC 5322 text/plain message
func (n *Notifier) Compose(notice Notification) ([]byte, error) {
	var h mail.Header
	h.SetDate(n.now())
	h.SetAddressList("From", []*mail.Address{{Name: n.fromName, Address: n.fromEmail}})
	h.SetAddressList("To", []*mail.Address{{Address: notice.To}})
	h.SetSubject(notice.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("User-Agent", UserAgent)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	if notice.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{notice.InReplyTo})
		h.SetMsgIDList("References", []string{notice.InReplyTo})
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, notice.Body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}

	return buf.Bytes(), nil
}
