package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/and161185/plaze/internal/config"
)

// Mailer sends account emails over SMTP.
type Mailer struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

var _ Notifier = (*Mailer)(nil)

// NewMailer validates cfg and returns an SMTP notifier.
func NewMailer(cfg config.SMTPConfig, timeout time.Duration) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("SMTP from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Mailer{cfg: cfg, timeout: timeout}, nil
}

// SendLockNotice mails the account-locked notice.
func (m *Mailer) SendLockNotice(ctx context.Context, to, name, recoveryURL string) error {
	return m.send(ctx, to, lockTemplate, mailData{Name: name, URL: recoveryURL})
}

// SendRecoveryEmail mails a password reset link.
func (m *Mailer) SendRecoveryEmail(ctx context.Context, to, name, recoveryURL string) error {
	return m.send(ctx, to, recoveryTemplate, mailData{Name: name, URL: recoveryURL})
}

// SendVerificationEmail mails an email confirmation link.
func (m *Mailer) SendVerificationEmail(ctx context.Context, to, name, verifyURL string) error {
	return m.send(ctx, to, verifyTemplate, mailData{Name: name, URL: verifyURL})
}

func (m *Mailer) compose(to string, t mailTemplate, d mailData) (*mail.Msg, error) {
	html, text, err := t.render(d)
	if err != nil {
		return nil, fmt.Errorf("rendering %q: %w", t.subject, err)
	}

	msg := mail.NewMsg()
	if m.cfg.FromName != "" {
		err = msg.FromFormat(m.cfg.FromName, m.cfg.From)
	} else {
		err = msg.From(m.cfg.From)
	}
	if err != nil {
		return nil, fmt.Errorf("setting from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}
	msg.Subject(t.subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)
	return msg, nil
}

func (m *Mailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.timeout),
	}
	if m.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// implicit TLS on 465, STARTTLS elsewhere
		if m.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if m.cfg.Username != "" && m.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func (m *Mailer) send(ctx context.Context, to string, t mailTemplate, d mailData) error {
	msg, err := m.compose(to, t, d)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
