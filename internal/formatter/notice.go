package formatter

import (
	"fmt"
	"strings"

	"github.com/mixelka/pdfingest/pkg/models"
)

// NoticeFormatter formats the texts sent back to senders and operators
type NoticeFormatter struct {
	maxLength int
}

// NewNoticeFormatter creates a new notice formatter
func NewNoticeFormatter() *NoticeFormatter {
	return &NoticeFormatter{
		maxLength: 4000, // Telegram message limit, leaving room for markup
	}
}

// Subject returns the reply subject for a failed ingest
func (f *NoticeFormatter) Subject(original string) string {
	return fmt.Sprintf("[Ingest Failed] Re: %s", original)
}

// Rejection returns the body explaining why a scan was declined
func (f *NoticeFormatter) Rejection(subject string, reason models.RejectReason) string {
	var cause string
	switch reason {
	case models.RejectAttachmentCount:
		cause = "not contain the correct number of attachments"
	case models.RejectAttachmentType:
		cause = "not contain a valid type of attachment"
	case models.RejectBarcode:
		cause = "not contain a single valid barcode"
	default:
		cause = "not pass validation"
	}
	return fmt.Sprintf("The incoming scan '%s' was declined as it did %s.", subject, cause)
}

// ServerError returns the body sent when processing failed unexpectedly
func (f *NoticeFormatter) ServerError(subject string) string {
	return fmt.Sprintf("The incoming scan '%s' failed to process due to a server error. "+
		"Please contact the Helpdesk if this problem continues.", subject)
}

// FailureAlert formats an operator alert for a message that failed to process
func (f *NoticeFormatter) FailureAlert(msg *models.InboundMessage, err error) string {
	var sb strings.Builder

	sb.WriteString("<b>Ingest failed</b>\n")
	sb.WriteString(fmt.Sprintf("<b>From:</b> %s\n", f.escapeHTML(msg.From)))
	sb.WriteString(fmt.Sprintf("<b>Subject:</b> %s\n", f.escapeHTML(msg.Subject)))
	if !msg.Date.IsZero() {
		sb.WriteString(fmt.Sprintf("<b>Date:</b> %s\n", msg.Date.Format("02.01.2006 15:04")))
	}
	sb.WriteString("\n")

	errText := f.truncate(err.Error(), f.maxLength-sb.Len()-50)
	sb.WriteString(fmt.Sprintf("<code>%s</code>", f.escapeHTML(errText)))

	return sb.String()
}

// StoppedAlert formats an operator alert for the ingest loop ending
func (f *NoticeFormatter) StoppedAlert(err error) string {
	if err == nil {
		return "<b>Ingest stopped</b>"
	}
	errText := f.truncate(err.Error(), f.maxLength-100)
	return fmt.Sprintf("<b>Ingest stopped</b>\nMailbox connection lost:\n<code>%s</code>", f.escapeHTML(errText))
}

// escapeHTML escapes HTML special characters for Telegram
func (f *NoticeFormatter) escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// truncate truncates text to maxLen characters
func (f *NoticeFormatter) truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Status formats the reply to the /status command
func (f *NoticeFormatter) Status(state string, accepted, rejected, dropped, failed int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>Ingest:</b> %s\n\n", f.escapeHTML(state)))
	sb.WriteString(fmt.Sprintf("Accepted: %d\n", accepted))
	sb.WriteString(fmt.Sprintf("Rejected: %d\n", rejected))
	sb.WriteString(fmt.Sprintf("Dropped: %d\n", dropped))
	sb.WriteString(fmt.Sprintf("Failed: %d", failed))
	return sb.String()
}
