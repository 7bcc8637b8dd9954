package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	from  string
	to    []string
	msg   []byte
	calls int
	err   error
}

func (r *recordingTransport) Send(_ context.Context, from string, to []string, msg []byte) error {
	r.calls++
	r.from, r.to, r.msg = from, to, msg
	return r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComposeHeaders(t *testing.T) {
	n := NewNotifier("Scan Intake", "scans@example.com", &recordingTransport{}, testLogger())
	n.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	raw, err := n.Compose(Notification{
		To:        "clerk@a.com",
		Subject:   "[Ingest Failed] Re: Scan",
		Body:      "declined",
		InReplyTo: "orig-123@scanner.a.com",
	})
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "Scan Intake", from[0].Name)
	assert.Equal(t, "scans@example.com", from[0].Address)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "[Ingest Failed] Re: Scan", subject)

	date, err := mr.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)))

	assert.Equal(t, "<orig-123@scanner.a.com>", mr.Header.Get("In-Reply-To"))
	assert.Equal(t, UserAgent, mr.Header.Get("User-Agent"))
	assert.NotEmpty(t, mr.Header.Get("Message-Id"))

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "declined", string(body))
}

func TestComposeWithoutThreading(t *testing.T) {
	n := NewNotifier("Scan Intake", "scans@example.com", &recordingTransport{}, testLogger())

	raw, err := n.Compose(Notification{To: "clerk@a.com", Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "In-Reply-To")
}

func TestSendUsesTransportOnce(t *testing.T) {
	tr := &recordingTransport{err: errors.New("auth failed")}
	n := NewNotifier("Scan Intake", "scans@example.com", tr, testLogger())

	err := n.Send(context.Background(), Notification{To: "clerk@a.com", Subject: "s", Body: "b"})
	assert.ErrorContains(t, err, "auth failed")
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, "scans@example.com", tr.from)
	assert.Equal(t, []string{"clerk@a.com"}, tr.to)
}

// smtp test server

type backend struct {
	mu       sync.Mutex
	username string
	password string
	from     string
	to       []string
	data     []byte
}

func (b *backend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &session{b: b}, nil
}

type session struct {
	b      *backend
	authed bool
}

func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.b.username || password != s.b.password {
			return errors.New("invalid credentials")
		}
		s.authed = true
		return nil
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.to = append(s.b.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.data = data
	return nil
}

func (s *session) Reset() {}

func (s *session) Logout() error { return nil }

func startServer(t *testing.T, be *backend) string {
	t.Helper()

	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	return l.Addr().String()
}

func TestSMTPTransportDelivers(t *testing.T) {
	be := &backend{username: "scans@example.com", password: "secret"}
	addr := startServer(t, be)

	n := NewNotifier("Scan Intake", "scans@example.com", NewSMTPTransport(SMTPConfig{Addr: addr, Username: "scans@example.com", Password: "secret"}), testLogger())
	err := n.Send(context.Background(), Notification{To: "clerk@a.com", Subject: "hello", Body: "body text"})
	require.NoError(t, err)

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, "scans@example.com", be.from)
	assert.Equal(t, []string{"clerk@a.com"}, be.to)
	assert.Contains(t, string(be.data), "Subject: hello")
	assert.Contains(t, string(be.data), "body text")
}

func TestSMTPTransportBadCredentials(t *testing.T) {
	be := &backend{username: "scans@example.com", password: "secret"}
	addr := startServer(t, be)

	tr := NewSMTPTransport(SMTPConfig{Addr: addr, Username: "scans@example.com", Password: "wrong"})
	err := tr.Send(context.Background(), "scans@example.com", []string{"clerk@a.com"}, []byte("Subject: x\r\n\r\nx"))
	assert.ErrorContains(t, err, "failed to login")
}

func TestSMTPTransportTimesOut(t *testing.T) {
	// accepts connections but never greets
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	var conns []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	for _, startTLS := range []bool{false, true} {
		tr := NewSMTPTransport(SMTPConfig{
			Addr:     l.Addr().String(),
			Username: "scans@example.com",
			Password: "secret",
			StartTLS: startTLS,
			Timeout:  200 * time.Millisecond,
		})

		start := time.Now()
		err = tr.Send(context.Background(), "scans@example.com", []string{"clerk@a.com"}, []byte("Subject: x\r\n\r\nx"))
		assert.Error(t, err, "starttls=%v", startTLS)
		assert.Less(t, time.Since(start), 5*time.Second, "starttls=%v", startTLS)
	}
}
