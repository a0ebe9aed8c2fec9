package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/wneessen/go-mail"

	"orderflow/internal/models"
)

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer e-mails the customer on every status change it knows a subject for.
type Mailer struct {
	cfg MailConfig
}

func NewMailer(cfg MailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Publish(ctx context.Context, event StatusEvent) error {
	if event.CustomerEmail == "" {
		return nil
	}
	subject, ok := statusSubject(event.Status)
	if !ok {
		return nil
	}

	msg, err := buildStatusMessage(m.cfg.From, event, subject)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	log.Printf("[NOTIFY] [INFO] status mail sent: %s -> order %s", event.Status, event.OrderID)
	return nil
}

func buildStatusMessage(from string, event StatusEvent, subject string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(event.CustomerEmail); err != nil {
		return nil, fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Order #%s\nStatus: %s\n%s\nTotal: %.2f\n",
		event.OrderID, event.Status, event.Message, event.Total,
	))
	return msg, nil
}

func statusSubject(status models.OrderStatus) (string, bool) {
	switch status {
	case models.StatusConfirmed:
		return "Your order is confirmed", true
	case models.StatusOutForDelivery:
		return "Your order is on its way", true
	case models.StatusDelivered:
		return "Your order has been delivered", true
	case models.StatusCancelled:
		return "Your order was cancelled", true
	}
	return "", false
}
