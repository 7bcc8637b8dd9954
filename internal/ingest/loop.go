// Package ingest drives the mailbox: drain what is there, then wait for new mail.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/pdfingest/internal/formatter"
	"github.com/mixelka/pdfingest/internal/notify"
	"github.com/mixelka/pdfingest/pkg/models"
)

// IdleTimeout bounds one wait for mailbox activity
const IdleTimeout = 60 * time.Second

// State is the loop phase
type State string

const (
	StateDraining State = "draining"
	StatePolling  State = "polling"
	StateStopped  State = "stopped"
)

// Mailbox is the connected intake mailbox
type Mailbox interface {
	Fetch(ctx context.Context, unseenOnly bool) ([]*models.InboundMessage, error)
	Delete(ctx context.Context, uid uint32) error
	WaitForActivity(ctx context.Context, timeout time.Duration) (bool, error)
}

// Processor decides the outcome of one message
type Processor interface {
	Process(ctx context.Context, msg *models.InboundMessage) (models.Outcome, error)
}

// Notifier sends replies to senders
type Notifier interface {
	Send(ctx context.Context, n notify.Notification) error
}

// Ledger records handled messages
type Ledger interface {
	CreateRecord(ctx context.Context, rec *models.IngestRecord) error
	LatestForBarcode(ctx context.Context, barcode string) (*models.IngestRecord, error)
}

// Alerter notifies operators
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Deps dependencies for creating a loop
type Deps struct {
	Mailbox   Mailbox
	Processor Processor
	Notifier  Notifier
	Formatter *formatter.NoticeFormatter
	Ledger    Ledger  // optional
	Alerter   Alerter // optional
	Logger    *slog.Logger
}

// Stats counts handled messages by outcome
type Stats struct {
	Accepted int
	Rejected int
	Dropped  int
	Failed   int
}

// Loop moves messages from the mailbox through the processor
type Loop struct {
	mailbox   Mailbox
	processor Processor
	notifier  Notifier
	formatter *formatter.NoticeFormatter
	ledger    Ledger
	alerter   Alerter
	logger    *slog.Logger
	timeout   time.Duration

	mu    sync.RWMutex
	state State
	stats Stats
}

// NewLoop creates a new ingestion loop
func NewLoop(deps Deps) *Loop {
	f := deps.Formatter
	if f == nil {
		f = formatter.NewNoticeFormatter()
	}
	return &Loop{
		mailbox:   deps.Mailbox,
		processor: deps.Processor,
		notifier:  deps.Notifier,
		formatter: f,
		ledger:    deps.Ledger,
		alerter:   deps.Alerter,
		logger:    deps.Logger.With("component", "ingest"),
		timeout:   IdleTimeout,
		state:     StateDraining,
	}
}

// State returns the current loop phase
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Stats returns the outcome counters
func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.logger.Info("ingest state changed", "state", s)
}

// Run drains the mailbox and then handles new mail until ctx is done or the
// mailbox connection fails. Cancellation returns nil.
func (l *Loop) Run(ctx context.Context) error {
	err := l.run(ctx)
	l.setState(StateStopped)

	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		l.logger.Info("ingest loop stopped")
		return nil
	}

	l.logger.Error("ingest loop stopped", "error", err)
	l.alert(context.Background(), l.formatter.StoppedAlert(err))
	return err
}

func (l *Loop) run(ctx context.Context) error {
	l.setState(StateDraining)
	if err := l.sweep(ctx, false); err != nil {
		return err
	}

	l.setState(StatePolling)
	for {
		active, err := l.mailbox.WaitForActivity(ctx, l.timeout)
		if err != nil {
			return fmt.Errorf("failed to wait for activity: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !active {
			continue
		}
		if err := l.sweep(ctx, true); err != nil {
			return err
		}
	}
}

// sweep fetches messages and handles and deletes each one
func (l *Loop) sweep(ctx context.Context, unseenOnly bool) error {
	messages, err := l.mailbox.Fetch(ctx, unseenOnly)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	if len(messages) > 0 {
		l.logger.Info("fetched messages", "count", len(messages), "unseen_only", unseenOnly)
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.handle(ctx, msg)

		if err := l.mailbox.Delete(ctx, msg.UID); err != nil {
			return fmt.Errorf("failed to delete message %d: %w", msg.UID, err)
		}
	}

	return nil
}

// handle processes one message and reports the result. It never fails: the
// message is deleted whatever happens here.
func (l *Loop) handle(ctx context.Context, msg *models.InboundMessage) {
	logger := l.logger.With("uid", msg.UID, "from", msg.From, "subject", msg.Subject)

	rec := &models.IngestRecord{
		UID:        msg.UID,
		MessageID:  msg.MessageID,
		Sender:     msg.From,
		Subject:    msg.Subject,
		ReceivedAt: msg.Date,
	}

	outcome, err := l.processor.Process(ctx, msg)
	switch {
	case err != nil:
		logger.Error("failed to process message", "error", err)
		rec.Outcome = string(models.OutcomeFailed)
		rec.Error = err.Error()
		rec.Notified = l.reply(ctx, logger, msg, l.formatter.ServerError(msg.Subject))
		l.alert(ctx, l.formatter.FailureAlert(msg, err))
		l.count(models.OutcomeFailed)

	case outcome.Notifies():
		logger.Info("message rejected", "reason", outcome.Reason, "detail", outcome.Detail)
		rec.Outcome = string(outcome.Kind)
		rec.Reason = string(outcome.Reason)
		rec.Notified = l.reply(ctx, logger, msg, l.formatter.Rejection(msg.Subject, outcome.Reason))
		l.count(outcome.Kind)

	case outcome.Kind == models.OutcomeDropped:
		logger.Info("message dropped", "detail", outcome.Detail)
		rec.Outcome = string(outcome.Kind)
		l.count(outcome.Kind)

	default:
		l.warnOverwrite(ctx, logger, outcome.Barcode)
		logger.Info("message ingested", "barcode", outcome.Barcode, "path", outcome.Path)
		rec.Outcome = string(outcome.Kind)
		rec.Barcode = outcome.Barcode
		rec.OutputPath = outcome.Path
		l.count(outcome.Kind)
	}

	l.record(ctx, logger, rec)
}

// reply sends one notification to the sender and reports whether it was
// delivered. Failures are logged and not retried.
func (l *Loop) reply(ctx context.Context, logger *slog.Logger, msg *models.InboundMessage, body string) bool {
	err := l.notifier.Send(ctx, notify.Notification{
		To:        msg.From,
		Subject:   l.formatter.Subject(msg.Subject),
		Body:      body,
		InReplyTo: msg.MessageID,
	})
	if err != nil {
		logger.Error("failed to send notification", "error", err)
		return false
	}
	return true
}

func (l *Loop) warnOverwrite(ctx context.Context, logger *slog.Logger, barcode string) {
	if l.ledger == nil {
		return
	}
	prev, err := l.ledger.LatestForBarcode(ctx, barcode)
	if err != nil || prev == nil {
		return
	}
	logger.Warn("replaced previously ingested document",
		"barcode", barcode, "previous_ingest_id", prev.IngestID, "previous_sender", prev.Sender)
}

func (l *Loop) record(ctx context.Context, logger *slog.Logger, rec *models.IngestRecord) {
	if l.ledger == nil {
		return
	}
	if err := l.ledger.CreateRecord(ctx, rec); err != nil {
		logger.Warn("failed to record outcome", "error", err)
	}
}

func (l *Loop) alert(ctx context.Context, text string) {
	if l.alerter == nil {
		return
	}
	if err := l.alerter.Alert(ctx, text); err != nil {
		l.logger.Warn("failed to send operator alert", "error", err)
	}
}

func (l *Loop) count(kind models.OutcomeKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch kind {
	case models.OutcomeAccepted:
		l.stats.Accepted++
	case models.OutcomeRejected:
		l.stats.Rejected++
	case models.OutcomeDropped:
		l.stats.Dropped++
	case models.OutcomeFailed:
		l.stats.Failed++
	}
}

// StatusText formats the loop state and counters for operators
func (l *Loop) StatusText() string {
	s := l.Stats()
	return l.formatter.Status(string(l.State()), s.Accepted, s.Rejected, s.Dropped, s.Failed)
}
