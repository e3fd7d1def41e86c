package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/arlenko/marketsentry/internal/models"
)

// EmailConfig holds SMTP transport settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	UseTLS   bool
}

// Email delivers alerts as plain-text mail over SMTP.
type Email struct {
	cfg EmailConfig
}

// NewEmail creates an email notifier.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host not configured")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from address not configured")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("no recipients configured")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &Email{cfg: cfg}, nil
}

func (e *Email) SendSignal(sig models.Signal) error {
	return e.send(signalSubject(sig), signalBody(sig))
}

func (e *Email) SendBuyDecision(dec models.BuyDecision, state models.LadderState) error {
	return e.send(decisionSubject(dec), decisionBody(dec, state))
}

func (e *Email) SendError(cycleErr error) error {
	return e.send("Cycle error", fmt.Sprintf("Cycle failed:\n\n%s\n", cycleErr))
}

func (e *Email) SendRecovery(failureCount int) error {
	return e.send("Recovered", fmt.Sprintf("Cycles succeeding again after %d consecutive failure(s).\n", failureCount))
}

func (e *Email) send(subject, body string) error {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(e.cfg.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)

	if e.cfg.UseTLS {
		return e.sendWithTLS(addr, auth, msg.String())
	}
	return smtp.SendMail(addr, auth, e.cfg.From, e.cfg.To, []byte(msg.String()))
}

// sendWithTLS sends over an implicit-TLS connection (port 465 style servers).
func (e *Email) sendWithTLS(addr string, auth smtp.Auth, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.cfg.Host})
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range e.cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}
