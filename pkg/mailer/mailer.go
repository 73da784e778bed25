// Package mailer sends transactional email over SMTP.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// BookingConfirmation is everything the confirmation mail shows.
type BookingConfirmation struct {
	BookingRef     string
	UserName       string
	UserEmail      string
	ExperienceName string
	Location       string
	StartTime      time.Time
	Quantity       int
	PricePaid      int
}

type Mailer struct {
	client   *mail.Client
	from     string
	fromName string
}

func New(cfg Config) (*Mailer, error) {
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(10 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not initialize smtp client: %w", err)
	}
	return &Mailer{client: client, from: cfg.From, fromName: cfg.FromName}, nil
}

func (m *Mailer) SendBookingConfirmation(ctx context.Context, c BookingConfirmation) error {
	msg, err := m.compose(c)
	if err != nil {
		return err
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send confirmation for %s: %w", c.BookingRef, err)
	}

	logrus.WithFields(logrus.Fields{
		"booking_ref": c.BookingRef,
		"to":          c.UserEmail,
	}).Info("Booking confirmation sent")
	return nil
}

func (m *Mailer) compose(c BookingConfirmation) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.fromName, m.from); err != nil {
		return nil, fmt.Errorf("failed to set From address: %w", err)
	}
	if err := msg.AddToFormat(c.UserName, c.UserEmail); err != nil {
		return nil, fmt.Errorf("failed to set To address: %w", err)
	}
	msg.Subject(fmt.Sprintf("Booking confirmed: %s (%s)", c.ExperienceName, c.BookingRef))
	msg.SetBodyString(mail.TypeTextPlain, ConfirmationBody(c))
	return msg, nil
}

// ConfirmationBody renders the plain text mail body.
func ConfirmationBody(c BookingConfirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", c.UserName)
	fmt.Fprintf(&b, "Your booking is confirmed.\n\n")
	fmt.Fprintf(&b, "Reference: %s\n", c.BookingRef)
	fmt.Fprintf(&b, "Experience: %s\n", c.ExperienceName)
	if c.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", c.Location)
	}
	if !c.StartTime.IsZero() {
		fmt.Fprintf(&b, "Starts: %s\n", c.StartTime.Format("Mon, 02 Jan 2006 15:04 MST"))
	}
	fmt.Fprintf(&b, "Spots: %d\n", c.Quantity)
	fmt.Fprintf(&b, "Total paid: ₹%d\n\n", c.PricePaid)
	b.WriteString("See you there!\n")
	return b.String()
}
