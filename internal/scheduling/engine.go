// Package scheduling turns booking emails into confirmations and reminders,
// and dispatches reminders once they are due.
package scheduling

import (
	"context"
	"slices"
	"time"

	"github.com/fortytwo/review-notifier/internal/extractor"
	"github.com/fortytwo/review-notifier/internal/models"
	"github.com/fortytwo/review-notifier/internal/notifications"
	"github.com/fortytwo/review-notifier/internal/reminders"
	"github.com/sirupsen/logrus"
)

// Outcome describes what handling one message did
type Outcome struct {
	Skipped           bool // already processed
	DateFound         bool
	Confirmed         bool
	DeliveryFailed    bool
	ReminderScheduled bool
}

// Engine handles newly observed booking emails
type Engine struct {
	store     *reminders.Store
	extractor *extractor.Extractor
	formatter *notifications.Formatter
	notifier  notifications.Notifier
	leadTime  time.Duration
}

// NewEngine creates a scheduling engine. Reminders fire leadTime before the event.
func NewEngine(store *reminders.Store, ex *extractor.Extractor, formatter *notifications.Formatter, notifier notifications.Notifier, leadTime time.Duration) *Engine {
	return &Engine{
		store:     store,
		extractor: ex,
		formatter: formatter,
		notifier:  notifier,
		leadTime:  leadTime,
	}
}

// OnNewMessage sends a confirmation for msg, schedules its reminder when the
// appointment time can be extracted and is far enough ahead, then marks msg
// processed. Messages already processed are skipped. Store failures are
// returned before msg is marked, so the message is retried next cycle.
func (e *Engine) OnNewMessage(ctx context.Context, msg models.Email, now time.Time) (Outcome, error) {
	var outcome Outcome
	log := logrus.WithField("message_id", msg.ID)

	processed, err := e.store.LoadProcessedIDs(ctx)
	if err != nil {
		return outcome, err
	}
	if slices.Contains(processed, msg.ID) {
		log.Debug("Message already processed, skipping")
		outcome.Skipped = true
		return outcome, nil
	}

	eventTime, found := e.extractor.Extract(msg.Body, now)
	var event *time.Time
	if found {
		event = &eventTime
		outcome.DateFound = true
		log.Infof("Extracted appointment time %s", eventTime.Format(time.RFC3339))
	} else {
		log.Info("No appointment time found in message body")
	}

	payload := e.formatter.FormatConfirmation(msg.Subject, msg.Body, event, now)
	if err := e.notifier.Send(ctx, payload); err != nil {
		log.Errorf("Failed to send confirmation: %v", err)
		outcome.DeliveryFailed = true
	} else {
		outcome.Confirmed = true
	}

	if found {
		scheduled, err := e.scheduleReminder(ctx, msg, eventTime, now)
		if err != nil {
			return outcome, err
		}
		outcome.ReminderScheduled = scheduled
	}

	if err := e.store.MarkProcessed(ctx, msg.ID); err != nil {
		return outcome, err
	}

	return outcome, nil
}

func (e *Engine) scheduleReminder(ctx context.Context, msg models.Email, eventTime, now time.Time) (bool, error) {
	fireTime := eventTime.Add(-e.leadTime)
	if !fireTime.After(now) {
		logrus.WithField("message_id", msg.ID).Infof("Reminder time %s is in the past, skipping", fireTime.Format(time.RFC3339))
		return false, nil
	}

	pending, err := e.store.LoadReminders(ctx)
	if err != nil {
		return false, err
	}

	pending = append(pending, models.Reminder{
		SourceID:  msg.ID,
		Subject:   msg.Subject,
		EventTime: eventTime,
		FireTime:  fireTime,
	})

	if err := e.store.SaveReminders(ctx, pending); err != nil {
		return false, err
	}

	logrus.WithField("message_id", msg.ID).Infof("Scheduled reminder for %s", fireTime.Format(time.RFC3339))
	return true, nil
}
