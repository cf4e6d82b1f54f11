package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"time"

	"github.com/linguachat/internal/config"
)

type Sender struct {
	cfg *config.SMTPConfig
}

func NewSender(cfg *config.SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

// Configured сообщает, задан ли SMTP; без него приглашения не шлются.
func (s *Sender) Configured() bool {
	return s.cfg.Username != "" && s.cfg.Password != ""
}

// SendInvite отправляет одно приглашение со ссылкой входа в чат.
func (s *Sender) SendInvite(ctx context.Context, to, joinURL string) error {
	if !s.Configured() {
		return fmt.Errorf("email: SMTP не настроен")
	}
	from := s.cfg.FromEmail
	if from == "" {
		from = s.cfg.Username
	}
	body := fmt.Sprintf("Вас пригласили в чат.\n\nСсылка для входа: %s\n", joinURL)
	var buf bytes.Buffer
	buf.WriteString("From: " + s.cfg.FromName + " <" + from + ">\r\n")
	buf.WriteString("To: " + to + "\r\n")
	buf.WriteString("Subject: Приглашение в чат\r\n")
	buf.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(body)
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(addr, auth, from, []string{to}, buf.Bytes()) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// SendInvites рассылает приглашения списку адресов. Ошибка одного адреса не
// прерывает рассылку; возвращается первая из встреченных ошибок.
func (s *Sender) SendInvites(ctx context.Context, emails []string, joinURL string) error {
	var firstErr error
	for _, to := range emails {
		if err := s.SendInvite(ctx, to, joinURL); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
