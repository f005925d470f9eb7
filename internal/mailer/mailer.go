// Package mailer sends agent email over authenticated SMTP.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Credentials identify the mailbox an agent sends from. For Gmail the
// password is an app password.
type Credentials struct {
	Email       string
	AppPassword string
}

type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Session is an open, authenticated SMTP connection.
type Session interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Dialer opens sessions and checks credentials.
type Dialer interface {
	Open(ctx context.Context, creds Credentials) (Session, error)
	Verify(ctx context.Context, creds Credentials) error
}

// SMTPDialer connects with PLAIN auth. The zero TLSPolicy requires STARTTLS.
type SMTPDialer struct {
	Host      string
	Port      int
	Timeout   time.Duration
	TLSPolicy mail.TLSPolicy
	Logger    *zap.Logger
}

var _ Dialer = (*SMTPDialer)(nil)

func NewSMTPDialer(host string, port int, logger *zap.Logger) *SMTPDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPDialer{
		Host:      host,
		Port:      port,
		Timeout:   15 * time.Second,
		TLSPolicy: mail.TLSMandatory,
		Logger:    logger,
	}
}

func (d *SMTPDialer) client(creds Credentials) (*mail.Client, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return mail.NewClient(d.Host,
		mail.WithTLSPortPolicy(d.TLSPolicy),
		mail.WithPort(d.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(creds.Email),
		mail.WithPassword(creds.AppPassword),
		mail.WithTimeout(timeout),
	)
}

// Open dials and authenticates. The caller must Close the session.
func (d *SMTPDialer) Open(ctx context.Context, creds Credentials) (Session, error) {
	c, err := d.client(creds)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("smtp dial %s:%d: %w", d.Host, d.Port, err)
	}
	d.Logger.Debug("SMTP session opened", zap.String("from", creds.Email))
	return &smtpSession{client: c}, nil
}

// Verify dials, authenticates and disconnects.
func (d *SMTPDialer) Verify(ctx context.Context, creds Credentials) error {
	s, err := d.Open(ctx, creds)
	if err != nil {
		return err
	}
	return s.Close()
}

type smtpSession struct {
	client *mail.Client
}

func (s *smtpSession) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := buildMsg(msg)
	if err != nil {
		return err
	}
	if err := s.client.Send(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func (s *smtpSession) Close() error {
	return s.client.Close()
}

func buildMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
