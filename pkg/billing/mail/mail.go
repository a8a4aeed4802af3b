// Package mail provides billing.Notifier implementations.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

var (
	// ErrHostRequired is returned when Config.Host is empty.
	ErrHostRequired = errors.New("smtp host is required")

	// ErrInvalidSender is returned when Config.From is not a valid address.
	ErrInvalidSender = errors.New("invalid sender address")

	// ErrInvalidRecipient is returned by SendMail for malformed recipients.
	ErrInvalidRecipient = errors.New("invalid recipient address")
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int // defaults to 587
	Username string
	Password string

	// From is the sender, e.g. "Acme Billing <billing@acme.test>".
	From string
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrHostRequired
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from *mail.Address
	send sendFunc
	now  func() time.Time
}

var _ billing.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates an SMTP notifier. PLAIN auth is used when a username is set.
func NewSMTPNotifier(config Config) (*SMTPNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	from, _ := mail.ParseAddress(config.From)

	port := config.Port
	if port == 0 {
		port = 587
	}

	n := &SMTPNotifier{
		addr: net.JoinHostPort(config.Host, strconv.Itoa(port)),
		from: from,
		send: smtp.SendMail,
		now:  time.Now,
	}
	if config.Username != "" {
		n.auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return n, nil
}

// SendMail implements billing.Notifier.
func (n *SMTPNotifier) SendMail(ctx context.Context, subject, body, recipient string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := mail.ParseAddress(recipient)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}

	msg := n.compose(to, subject, body)
	if err := n.send(n.addr, n.auth, n.from.Address, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to.Address, err)
	}
	return nil
}

func (n *SMTPNotifier) compose(to *mail.Address, subject, body string) []byte {
	var b bytes.Buffer
	header := func(key, value string) {
		fmt.Fprintf(&b, "%s: %s\r\n", key, value)
	}
	header("From", n.from.String())
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", n.now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(n.from.Address)))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 {
		return address[i+1:]
	}
	return "localhost"
}

// LogNotifier writes mail to a logger instead of sending it. Useful in development.
type LogNotifier struct {
	Logger billing.Logger
}

var _ billing.Notifier = (*LogNotifier)(nil)

// SendMail implements billing.Notifier.
func (n *LogNotifier) SendMail(_ context.Context, subject, body, recipient string) error {
	logger := n.Logger
	if logger == nil {
		logger = &billing.NoopLogger{}
	}
	logger.Info("mail",
		billing.Field{Key: "recipient", Value: recipient},
		billing.Field{Key: "subject", Value: subject},
		billing.Field{Key: "body", Value: body},
	)
	return nil
}
