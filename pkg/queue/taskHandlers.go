package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/ds124wfegd/bookit/pkg/mailer"
	"github.com/sirupsen/logrus"
)

// Mailer отправляет письма клиентам
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, c mailer.BookingConfirmation) error
}

// TelegramBot интерфейс для Telegram бота
type TelegramBot interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TaskHandler обрабатывает задачи из очереди
type TaskHandler struct {
	mailer      Mailer
	telegramBot TelegramBot
	opsChatID   string
}

// NewTaskHandler создает новый обработчик задач. Any notifier may be nil.
func NewTaskHandler(m Mailer, telegramBot TelegramBot, opsChatID string) *TaskHandler {
	return &TaskHandler{
		mailer:      m,
		telegramBot: telegramBot,
		opsChatID:   opsChatID,
	}
}

// HandleTask обрабатывает задачу
func (h *TaskHandler) HandleTask(ctx context.Context, task *Task) error {
	logrus.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"attempt":     task.Attempts,
		"max_retries": task.MaxRetries,
	}).Debug("Processing task")

	switch task.Type {
	case TaskTypeBookingConfirmed:
		return h.handleBookingConfirmed(ctx, task)
	default:
		return Permanent(fmt.Errorf("unknown task type: %s", task.Type))
	}
}

// handleBookingConfirmed sends the customer mail and an ops notice.
// Only a mail failure is retried; the Telegram notice is best effort.
func (h *TaskHandler) handleBookingConfirmed(ctx context.Context, task *Task) error {
	confirmation := mailer.BookingConfirmation{
		BookingRef:     task.GetString("booking_ref"),
		UserName:       task.GetString("user_name"),
		UserEmail:      task.GetString("user_email"),
		ExperienceName: task.GetString("experience_name"),
		Location:       task.GetString("location"),
		StartTime:      task.GetTime("start_time"),
		Quantity:       task.GetInt("quantity"),
		PricePaid:      task.GetInt("price_paid"),
	}
	if confirmation.BookingRef == "" || confirmation.UserEmail == "" {
		return Permanent(errors.New("booking_ref and user_email are required"))
	}

	if h.mailer != nil {
		if err := h.mailer.SendBookingConfirmation(ctx, confirmation); err != nil {
			return fmt.Errorf("failed to mail confirmation %s: %w", confirmation.BookingRef, err)
		}
	}

	if h.telegramBot != nil && h.opsChatID != "" {
		message := fmt.Sprintf(
			"🎫 New booking %s\n%s\n%s\nSpots: %d\nPaid: ₹%d",
			confirmation.BookingRef,
			confirmation.ExperienceName,
			confirmation.StartTime.Format("02.01.2006 15:04"),
			confirmation.Quantity,
			confirmation.PricePaid,
		)
		if err := h.telegramBot.SendMessage(ctx, h.opsChatID, message); err != nil {
			logrus.WithError(err).WithField("booking_ref", confirmation.BookingRef).Warn("Failed to send Telegram notification")
		}
	}

	return nil
}
