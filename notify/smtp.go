package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/pkg/errors"
)

// DefaultMailTemplate is the body of the login mail. Executed with MailParams.
const DefaultMailTemplate = `Hello!

Access your account here: {{.LoginURL}}

If you did not request a login, you can ignore this email.
`

// MailParams is passed as data when executing the mail template.
type MailParams struct {
	Identity string
	LoginURL string
	Host     string
}

// SMTPConfig configures the SMTP notifier.
type SMTPConfig struct {
	Addr     string // host:port of the SMTP server
	Username string
	Password string
	From     string
	Host     string // public host name used in the mail subject

	// Template overrides DefaultMailTemplate when non-empty.
	Template string

	// Timeout bounds a single delivery attempt. Default 10s.
	Timeout time.Duration
}

// SMTPNotifier delivers login URLs by email over authenticated SMTP.
type SMTPNotifier struct {
	config SMTPConfig
	tmpl   *template.Template

	// sendMail is swappable for testing.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ Notifier = (*SMTPNotifier)(nil)

// NewSMTP creates an SMTP notifier.
func NewSMTP(config SMTPConfig) (*SMTPNotifier, error) {
	if config.Addr == "" || config.From == "" {
		return nil, errors.New("[notify.NewSMTP] addr and from are required")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	body := config.Template
	if body == "" {
		body = DefaultMailTemplate
	}
	tmpl, err := template.New("login-mail").Parse(body)
	if err != nil {
		return nil, errors.Wrap(err, "[notify.NewSMTP] parse mail template")
	}

	return &SMTPNotifier{
		config:   config,
		tmpl:     tmpl,
		sendMail: smtp.SendMail,
	}, nil
}

// Send emails the login URL to identity. The context bounds the attempt; a
// deadline already expired before dialing aborts without sending.
func (n *SMTPNotifier) Send(ctx context.Context, identity, loginURL string) error {
	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	var body bytes.Buffer
	params := MailParams{Identity: identity, LoginURL: loginURL, Host: n.config.Host}
	if err := n.tmpl.Execute(&body, params); err != nil {
		return errors.Wrap(err, "[SMTPNotifier.Send] execute mail template")
	}

	msg := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: Login for %s\r\n\r\n%s",
		identity, n.config.From, n.config.Host, body.String())

	var auth smtp.Auth
	if n.config.Username != "" {
		host, _, _ := splitAddr(n.config.Addr)
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, host)
	}

	// net/smtp has no context support; run the send in a goroutine and race
	// it against the deadline.
	done := make(chan error, 1)
	go func() {
		done <- n.sendMail(n.config.Addr, auth, n.config.From, []string{identity}, []byte(msg))
	}()

	select {
	case err := <-done:
		return errors.Wrap(err, "[SMTPNotifier.Send] smtp.SendMail")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "[SMTPNotifier.Send] delivery timed out")
	}
}

func splitAddr(addr string) (host, port string, ok bool) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], true
		}
	}
	return addr, "", false
}
