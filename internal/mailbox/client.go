package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/pdfingest/pkg/models"
)

// ClientConfig configuration for IMAP client
type ClientConfig struct {
	Username    string
	Password    string
	Server      string // host:port, implicit TLS
	Mailbox     string // defaults to INBOX
	DialTimeout time.Duration
}

// Client IMAP client for the intake mailbox
type Client struct {
	config    ClientConfig
	client    *client.Client
	logger    *slog.Logger
	mu        sync.Mutex
	connected bool

	activity chan struct{} // one pending "new mail" signal
	closed   chan struct{} // closed on logout, stops watchUpdates
}

// NewClient creates a new IMAP client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Client{
		config: cfg,
		logger: logger.With("component", "mailbox", "mailbox", cfg.Mailbox),
	}
}

// Connect connects to the IMAP server, logs in and selects the mailbox
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	c.logger.Info("connecting to IMAP server", "server", c.config.Server)

	// Connect with TLS and timeout
	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.config.Server, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}

	// Updates is set once, before any command can produce one
	updates := make(chan client.Update, 64)
	imapClient.Updates = updates
	c.activity = make(chan struct{}, 1)
	c.closed = make(chan struct{})
	go c.watchUpdates(updates, c.activity, c.closed)

	if err := imapClient.Login(c.config.Username, c.config.Password); err != nil {
		imapClient.Logout()
		close(c.closed)
		return fmt.Errorf("failed to login: %w", err)
	}

	if _, err := imapClient.Select(c.config.Mailbox, false); err != nil {
		imapClient.Logout()
		close(c.closed)
		return fmt.Errorf("failed to select %s: %w", c.config.Mailbox, err)
	}

	c.client = imapClient
	c.connected = true
	c.logger.Info("connected to IMAP server")

	return nil
}

// Fetch returns the messages in the mailbox. With unseenOnly set, messages
// already flagged \Seen are skipped. Fetching marks messages as seen.
func (c *Client) Fetch(ctx context.Context, unseenOnly bool) ([]*models.InboundMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	criteria := imap.NewSearchCriteria()
	if unseenOnly {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var inbound []*models.InboundMessage
	for msg := range messages {
		inbound = append(inbound, c.parseMessage(msg, section))
	}

	if err := <-done; err != nil {
		return inbound, fmt.Errorf("failed to fetch: %w", err)
	}

	return inbound, nil
}

// parseMessage converts an IMAP message into an InboundMessage. Parts that
// cannot be read are logged and skipped.
func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) *models.InboundMessage {
	in := &models.InboundMessage{
		UID:  msg.Uid,
		Date: msg.InternalDate,
	}

	if msg.Envelope != nil {
		in.Subject = msg.Envelope.Subject
		in.MessageID = strings.Trim(msg.Envelope.MessageId, "<> ")
		if !msg.Envelope.Date.IsZero() {
			in.Date = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			in.From = msg.Envelope.From[0].Address()
		}
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		c.logger.Warn("message has no body", "uid", msg.Uid)
		return in
	}

	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		c.logger.Warn("failed to create mail reader", "uid", msg.Uid, "error", err)
		return in
	}
	defer mr.Close()

	if in.From == "" {
		if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
			in.From = from[0].Address
		}
	}
	if in.MessageID == "" {
		in.MessageID, _ = mr.Header.MessageID()
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("failed to read part", "uid", msg.Uid, "error", err)
			break
		}

		att, ok := attachmentFromPart(part)
		if !ok {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			c.logger.Warn("failed to read attachment", "uid", msg.Uid, "filename", att.Filename, "error", err)
			continue
		}
		att.Data = data
		in.Attachments = append(in.Attachments, att)
	}

	return in
}

// attachmentFromPart reports whether part is an attachment. Parts with an
// attachment disposition count, as do named non-text inline parts.
func attachmentFromPart(part *mail.Part) (models.Attachment, bool) {
	switch h := part.Header.(type) {
	case *mail.AttachmentHeader:
		ct, _, _ := h.ContentType()
		filename, _ := h.Filename()
		return models.Attachment{ContentType: strings.ToLower(ct), Filename: filename}, true
	case *mail.InlineHeader:
		ct, ctParams, _ := h.ContentType()
		_, dispParams, _ := h.ContentDisposition()
		filename := dispParams["filename"]
		if filename == "" {
			filename = ctParams["name"]
		}
		if filename == "" || strings.HasPrefix(ct, "text/") {
			return models.Attachment{}, false
		}
		return models.Attachment{ContentType: strings.ToLower(ct), Filename: filename}, true
	}
	return models.Attachment{}, false
}

// Delete deletes a message (adds \Deleted flag and expunges)
func (c *Client) Delete(ctx context.Context, uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}

	if err := c.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark as deleted: %w", err)
	}

	if err := c.client.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}

	return nil
}

// Logout closes the selected mailbox and ends the session
func (c *Client) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	imapClient := c.client
	c.client = nil
	c.connected = false
	defer close(c.closed)

	c.logger.Info("closing the IMAP connection")

	if err := imapClient.Close(); err != nil {
		c.logger.Warn("failed to close mailbox", "error", err)
	}

	// Force close if logout takes too long
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Logout()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return imapClient.Terminate()
	}
}
