package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mixelka/pdfingest/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// CreateRecord stores the outcome of one handled message
func (db *DB) CreateRecord(ctx context.Context, rec *models.IngestRecord) error {
	if rec.IngestID == "" {
		rec.IngestID = uuid.NewString()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}

	query := `
		INSERT INTO ingest_log (ingest_id, uid, message_id, sender, subject, outcome, reason, barcode, output_path, error, notified, received_at, processed_at)
		VALUES (:ingest_id, :uid, :message_id, :sender, :subject, :outcome, :reason, :barcode, :output_path, :error, :notified, :received_at, :processed_at)
	`
	result, err := db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// GetRecord returns a record by its ingest ID
func (db *DB) GetRecord(ctx context.Context, ingestID string) (*models.IngestRecord, error) {
	var rec models.IngestRecord
	query := `SELECT * FROM ingest_log WHERE ingest_id = ?`
	err := db.GetContext(ctx, &rec, query, ingestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// LatestForBarcode returns the most recent accepted record for a barcode
func (db *DB) LatestForBarcode(ctx context.Context, barcode string) (*models.IngestRecord, error) {
	var rec models.IngestRecord
	query := `SELECT * FROM ingest_log WHERE barcode = ? AND outcome = ? ORDER BY processed_at DESC, id DESC LIMIT 1`
	err := db.GetContext(ctx, &rec, query, barcode, string(models.OutcomeAccepted))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}
