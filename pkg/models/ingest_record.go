package models

import "time"

// IngestRecord is a ledger row describing how one message was handled
type IngestRecord struct {
	ID          int64     `db:"id"`
	IngestID    string    `db:"ingest_id"`    // UUID assigned when handling starts
	UID         uint32    `db:"uid"`          // IMAP UID
	MessageID   string    `db:"message_id"`   // Email Message-ID header
	Sender      string    `db:"sender"`       // Sender email
	Subject     string    `db:"subject"`      // Email subject
	Outcome     string    `db:"outcome"`      // accepted, rejected, dropped, failed
	Reason      string    `db:"reason"`       // Rejection reason, if any
	Barcode     string    `db:"barcode"`      // Accepted barcode text
	OutputPath  string    `db:"output_path"`  // Written PDF path
	Error       string    `db:"error"`        // Processing error text for failed messages
	Notified    bool      `db:"notified"`     // A notification was delivered to the sender
	ReceivedAt  time.Time `db:"received_at"`  // Message date
	ProcessedAt time.Time `db:"processed_at"` // When handling finished
}
