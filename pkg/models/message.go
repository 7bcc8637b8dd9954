package models

import "time"

// PDFContentType is the only attachment type accepted for ingestion
const PDFContentType = "application/pdf"

// InboundMessage represents a message fetched from the intake mailbox
type InboundMessage struct {
	UID         uint32       // IMAP UID, used to delete the message after handling
	MessageID   string       // Message-ID header without angle brackets
	From        string       // Sender address
	Subject     string       // Email subject
	Date        time.Time    // When the message was sent
	Attachments []Attachment // Attachment parts in message order
}

// Attachment represents a single attachment part
type Attachment struct {
	ContentType string // Lower-cased media type, e.g. application/pdf
	Filename    string
	Data        []byte
}
