package scheduling

import (
	"context"
	"time"

	"github.com/fortytwo/review-notifier/internal/models"
	"github.com/fortytwo/review-notifier/internal/notifications"
	"github.com/fortytwo/review-notifier/internal/reminders"
	"github.com/sirupsen/logrus"
)

// DispatchResult summarizes one dispatch pass
type DispatchResult struct {
	Dispatched int
	Failed     int
	Pending    int
}

// Dispatcher sends reminders whose fire time has passed
type Dispatcher struct {
	store     *reminders.Store
	formatter *notifications.Formatter
	notifier  notifications.Notifier
}

func NewDispatcher(store *reminders.Store, formatter *notifications.Formatter, notifier notifications.Notifier) *Dispatcher {
	return &Dispatcher{
		store:     store,
		formatter: formatter,
		notifier:  notifier,
	}
}

// DispatchDue removes every reminder with FireTime <= now from the store and
// then delivers them in stored order. Reminders are delivered at most once:
// a failed delivery is logged and not retried.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (DispatchResult, error) {
	var result DispatchResult

	all, err := d.store.LoadReminders(ctx)
	if err != nil {
		return result, err
	}

	due, notDue := partition(all, now)
	result.Pending = len(notDue)

	if len(due) == 0 {
		return result, nil
	}

	if err := d.store.SaveReminders(ctx, notDue); err != nil {
		return result, err
	}

	for _, r := range due {
		payload := d.formatter.FormatReminder(r.Subject, r.EventTime, now)
		if err := d.notifier.Send(ctx, payload); err != nil {
			logrus.WithField("message_id", r.SourceID).Errorf("Failed to send reminder: %v", err)
			result.Failed++
			continue
		}
		logrus.WithField("message_id", r.SourceID).Info("Reminder sent")
		result.Dispatched++
	}

	return result, nil
}

func partition(all []models.Reminder, now time.Time) (due, notDue []models.Reminder) {
	notDue = []models.Reminder{}
	for _, r := range all {
		if r.IsDue(now) {
			due = append(due, r)
		} else {
			notDue = append(notDue, r)
		}
	}
	return due, notDue
}
