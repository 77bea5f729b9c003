package email

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/socertis/bnpl-simulator/internal/config"
	"github.com/socertis/bnpl-simulator/internal/store"
)

// ReminderTier selects the subject and wording of a payment reminder.
type ReminderTier int

const (
	TierUpcoming ReminderTier = iota
	TierDueToday
	TierOverdue
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendPaymentReminder sends a payment reminder email for one installment
func (s *Sender) SendPaymentReminder(target *store.ReminderTarget, tier ReminderTier) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{target.CustomerEmail}

	dueDate := target.DueDate.Format("2006-01-02")
	position := fmt.Sprintf("installment %d of %d on plan #%d", target.Number, target.InstallmentCount, target.PlanID)

	var body string
	switch tier {
	case TierOverdue:
		e.Subject = "Overdue Installment Notification"
		body = fmt.Sprintf(
			"Your payment of %s for %s was due on %s and is now overdue.\n"+
				"Please make the payment as soon as possible.\n",
			target.Amount.StringFixed(2), position, dueDate,
		)
	case TierDueToday:
		e.Subject = "Installment Due Today"
		body = fmt.Sprintf(
			"Your payment of %s for %s is due today.\n"+
				"Please make the payment before the end of the day.\n",
			target.Amount.StringFixed(2), position,
		)
	default:
		e.Subject = "Upcoming Installment Reminder"
		body = fmt.Sprintf(
			"This is a reminder that your payment of %s for %s is due on %s.\n",
			target.Amount.StringFixed(2), position, dueDate,
		)
	}
	body += "\nBest regards,\nBNPL Simulator"
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", target.CustomerEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", target.CustomerEmail, e.Subject)
	return nil
}
