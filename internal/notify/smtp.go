package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPConfig configuration for the SMTP transport
type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	StartTLS bool          // upgrade the connection before authenticating
	Timeout  time.Duration // bounds the whole session
}

// SMTPTransport opens one authenticated SMTP session per message
type SMTPTransport struct {
	config SMTPConfig
}

// NewSMTPTransport creates a new SMTP transport
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{config: cfg}
}

// Send implements Transport
func (t *SMTPTransport) Send(ctx context.Context, from string, to []string, msg []byte) error {
	deadline := time.Now().Add(t.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := &net.Dialer{Timeout: time.Until(deadline)}
	raw, err := dialer.DialContext(ctx, "tcp", t.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	conn := &deadlineConn{Conn: raw, deadline: deadline}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	c, err := t.newClient(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", t.config.Username, t.config.Password)); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	if err := c.SendMail(from, to, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}

	return c.Quit()
}

func (t *SMTPTransport) newClient(conn net.Conn) (*smtp.Client, error) {
	if !t.config.StartTLS {
		return smtp.NewClient(conn), nil
	}

	host, _, _ := net.SplitHostPort(t.config.Addr)
	c, err := smtp.NewClientStartTLS(conn, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("failed to start TLS: %w", err)
	}
	return c, nil
}

// deadlineConn caps every deadline set on it at the session deadline.
// go-smtp resets deadlines per command using its own, much longer timeouts.
type deadlineConn struct {
	net.Conn
	deadline time.Time
}

func (c *deadlineConn) clamp(t time.Time) time.Time {
	if t.IsZero() || t.After(c.deadline) {
		return c.deadline
	}
	return t
}

func (c *deadlineConn) SetDeadline(t time.Time) error {
	return c.Conn.SetDeadline(c.clamp(t))
}

func (c *deadlineConn) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(c.clamp(t))
}

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(c.clamp(t))
}
