package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jyhan/lwtrader/shared"
	"github.com/rs/zerolog"
)

// MailerConfig represents the configuration for the email notification sink.
type MailerConfig struct {
	// Host is the smtp host.
	Host string
	// Port is the smtp port.
	Port int
	// User is the smtp user and sender address.
	User string
	// Pass is the smtp app password.
	Pass string
	// To is the set of recipient addresses.
	To []string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Mailer delivers trade notifications over smtp. Delivery is best effort,
// a failed or unconfigured send never reaches the trading path.
type Mailer struct {
	cfg *MailerConfig
}

// Ensure the mailer implements the NotificationSink interface.
var _ shared.NotificationSink = (*Mailer)(nil)

// NewMailer initializes a new email notification sink.
func NewMailer(cfg *MailerConfig) *Mailer {
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	return &Mailer{cfg: cfg}
}

// configured checks whether enough settings are present to attempt a send.
func (m *Mailer) configured() bool {
	return m.cfg.User != "" && m.cfg.Pass != "" && len(m.cfg.To) > 0
}

// Notify sends the provided message to the configured recipients. Missing
// settings skip the send silently, failures are logged and swallowed.
func (m *Mailer) Notify(subject string, body string) {
	if !m.configured() {
		return
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.User, strings.Join(m.cfg.To, ", "), subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)

	err := smtp.SendMail(addr, auth, m.cfg.User, m.cfg.To, []byte(msg))
	if err != nil {
		m.cfg.Logger.Error().Msgf("sending notification %q: %v", subject, err)
	}
}
