package app

import (
	"strings"

	"github.com/twentyfive/authgate/pkg/mail"
)

// SMTPSettings converts EmailConfig to the mail package representation. The
// sender address defaults to the SMTP login, as Gmail requires.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	from := strings.TrimSpace(c.SMTP.From)
	if from == "" {
		from = strings.TrimSpace(c.SMTP.Username)
	}
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     strings.TrimSpace(c.SMTP.Host),
		Port:     c.SMTP.Port,
		Username: strings.TrimSpace(c.SMTP.Username),
		Password: c.SMTP.Password,
		From:     from,
		FromName: strings.TrimSpace(c.SMTP.FromName),
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}
