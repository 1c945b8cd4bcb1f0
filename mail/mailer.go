// Package mail is the delivery boundary for outbound messages. The core
// only hands over a subject, a body and a recipient; SMTP is one
// implementation of that boundary.
package mail

import (
	"net/smtp"

	"nagano_festival_backend/config"
)

type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	host   string
	port   string
	sender string
	pwd    string
}

func NewSMTPMailer(cfg config.Config) *SMTPMailer {
	return &SMTPMailer{
		host:   cfg.SMTPHost,
		port:   cfg.SMTPPort,
		sender: cfg.SMTPSender,
		pwd:    cfg.SMTPPwd,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := []byte("Subject: " + subject + "\r\n" +
		"To: " + to + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
		"\r\n" + body)
	auth := smtp.PlainAuth("", m.sender, m.pwd, m.host)
	return smtp.SendMail(m.host+":"+m.port, auth, m.sender, []string{to}, msg)
}
