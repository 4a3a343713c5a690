// Package email holds the email transports: SMTP, SES, Mailgun, SendGrid,
// Mailchimp Transactional and Resend.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// SMTPOption configures the behaviour of the SMTP transport.
type SMTPOption func(*SMTPTransport)

// WithSMTPTLSConfig overrides the TLS configuration used when negotiating
// STARTTLS. A nil config disables STARTTLS.
func WithSMTPTLSConfig(cfg *tls.Config) SMTPOption {
	return func(p *SMTPTransport) {
		p.tlsConfig = cfg
	}
}

// WithSMTPDialer swaps the network dialer used to establish SMTP connections.
func WithSMTPDialer(d Dialer) SMTPOption {
	return func(p *SMTPTransport) {
		if d != nil {
			p.dialer = d
		}
	}
}

// WithSMTPClock replaces the clock used for the Date header.
func WithSMTPClock(now func() time.Time) SMTPOption {
	return func(p *SMTPTransport) {
		if now != nil {
			p.now = now
		}
	}
}

// Dialer abstracts net.Dialer to simplify testing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SMTPTransport delivers envelopes to an SMTP relay.
type SMTPTransport struct {
	logger    zerolog.Logger
	host      string
	port      int
	auth      smtp.Auth
	tlsConfig *tls.Config
	dialer    Dialer
	now       func() time.Time
	helloName string
}

var _ common.Transport = (*SMTPTransport)(nil)

// NewSMTP builds the transport from settings. Auth keys: "host" (required),
// "port" (default 587), "user" and "pass". Options: "hello_name" and
// "starttls" ("false" disables it).
func NewSMTP(settings models.Settings, logger zerolog.Logger, opts ...SMTPOption) (*SMTPTransport, error) {
	host := settings.AuthValue("host")
	if host == "" {
		return nil, common.NewConfiguration("smtp transport: host is required")
	}
	port := 587
	if raw := settings.AuthValue("port"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 65535 {
			return nil, common.NewConfiguration("smtp transport: invalid port %q", raw)
		}
		port = parsed
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	p := &SMTPTransport{
		logger:    logger.With().Str("transport", models.TransportSMTP).Logger(),
		host:      host,
		port:      port,
		dialer:    &net.Dialer{Timeout: 30 * time.Second},
		now:       time.Now,
		helloName: "localhost",
	}
	if name := settings.Option("hello_name"); name != "" {
		p.helloName = name
	}
	if user := settings.AuthValue("user"); user != "" {
		p.auth = smtp.PlainAuth("", user, settings.Auth["pass"], host)
	}
	if !strings.EqualFold(settings.Option("starttls"), "false") {
		p.tlsConfig = &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// SMTPFactory adapts NewSMTP to common.Factory.
func SMTPFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewSMTP(settings, logger)
}

// Send renders env as MIME and delivers it to every recipient.
func (p *SMTPTransport) Send(ctx context.Context, env *models.Envelope) error {
	from, err := normalizeEnvelopeAddress(env.From)
	if err != nil {
		return common.NewTransport(models.TransportSMTP, "smtp: invalid from address", err)
	}
	recipients, err := normalizeEnvelopeList(uniqueAddresses(env.To))
	if err != nil {
		return common.NewTransport(models.TransportSMTP, "smtp: invalid recipient", err)
	}
	if len(recipients) == 0 {
		return common.NewTransport(models.TransportSMTP, "smtp: at least one recipient is required", nil)
	}

	messageID := uuid.NewString() + "@" + p.helloName
	message, err := buildMIME(env, messageID, p.now())
	if err != nil {
		return common.NewTransport(models.TransportSMTP, "smtp: build message", err)
	}

	if err := p.deliver(ctx, from, recipients, message); err != nil {
		code, detail := classifySMTPError(err)
		p.logger.Warn().Int("code", code).Str("detail", detail).Err(err).Msg("smtp delivery failed")
		return common.NewTransport(models.TransportSMTP, fmt.Sprintf("smtp: %v", err), err)
	}

	p.logger.Debug().Str("message_id", messageID).Int("recipients", len(recipients)).Msg("smtp message accepted")
	return nil
}

func (p *SMTPTransport) deliver(ctx context.Context, from string, recipients []string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if err := client.Hello(p.helloName); err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	if cfg := p.sessionTLSConfig(); cfg != nil {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(cfg); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if p.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(p.auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return fmt.Errorf("data write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}

	if err := client.Quit(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("quit: %w", err)
	}
	return ctx.Err()
}

func (p *SMTPTransport) sessionTLSConfig() *tls.Config {
	if p.tlsConfig == nil {
		return nil
	}
	cfg := p.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = p.host
	}
	return cfg
}

func uniqueAddresses(list ...[]string) []string {
	result := make([]string, 0)
	seen := make(map[string]struct{})
	for _, group := range list {
		for _, raw := range group {
			addr := strings.TrimSpace(raw)
			if addr == "" {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			result = append(result, addr)
		}
	}
	return result
}

func normalizeEnvelopeList(addresses []string) ([]string, error) {
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		parsed, err := normalizeEnvelopeAddress(addr)
		if err != nil {
			return nil, err
		}
		result = append(result, parsed)
	}
	return result, nil
}

func normalizeEnvelopeAddress(value string) (string, error) {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", err
	}
	if addr.Address == "" {
		return "", errors.New("empty address")
	}
	return addr.Address, nil
}

// classifySMTPError extracts the SMTP reply code and text for logging.
func classifySMTPError(err error) (int, string) {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code, strings.TrimSpace(tpErr.Msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, "smtp: timeout"
	}
	return 0, ""
}
