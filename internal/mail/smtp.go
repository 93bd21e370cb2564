package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"strconv"

	"github.com/dajohi/goemail"
)

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string // "Nombre <correo>" 形式も可
	FromName   string
	SkipVerify bool
}

// SMTPMailer はgoemailを使ってSMTPS経由でメールを送信する。
type SMTPMailer struct {
	client      *goemail.SMTP
	mailName    string
	mailAddress string
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	addr, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid mail from address %q: %w", cfg.From, err)
	}
	name := cfg.FromName
	if name == "" {
		name = addr.Name
	}

	host := cfg.Host
	if cfg.Port > 0 {
		host = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	u := url.URL{Scheme: "smtps", Host: host}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}

	tlsConfig := &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipVerify,
	}

	client, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPMailer{
		client:      client,
		mailName:    name,
		mailAddress: addr.Address,
	}, nil
}

// Send はメッセージをプレーンテキストで送信する。
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, text, err := Render(msg)
	if err != nil {
		return err
	}

	email := goemail.NewMessage(m.mailAddress, msg.Subject, text)
	email.AddTo(msg.To)
	email.SetName(m.mailName)

	if err := m.client.Send(email); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

var _ Mailer = (*SMTPMailer)(nil)
