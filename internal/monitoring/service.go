package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/fortytwo/review-notifier/internal/extractor"
	"github.com/fortytwo/review-notifier/internal/notifications"
	"github.com/fortytwo/review-notifier/internal/reminders"
	"github.com/fortytwo/review-notifier/internal/scheduling"
	"github.com/fortytwo/review-notifier/internal/sources"
	"github.com/fortytwo/review-notifier/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service drives the two scheduled entry points: polling the inbox for new
// bookings and dispatching due reminders. All state shared between runs lives
// in the reminder store; the in-memory metrics are informational only.
type Service struct {
	config     *config.Config
	store      *reminders.Store
	source     sources.Source
	notifier   notifications.Notifier
	formatter  *notifications.Formatter
	engine     *scheduling.Engine
	dispatcher *scheduling.Dispatcher

	// cycleMu keeps the two cycles from interleaving their read-modify-write
	// of the reminder collection within this process
	cycleMu sync.Mutex

	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds cumulative counters since process start
type Metrics struct {
	LastPollRun         time.Time `json:"last_poll_run"`
	LastPollDuration    string    `json:"last_poll_duration"`
	LastReminderRun     time.Time `json:"last_reminder_run"`
	PollRuns            int       `json:"poll_runs"`
	ReminderRuns        int       `json:"reminder_runs"`
	MessagesSeen        int       `json:"messages_seen"`
	MessagesProcessed   int       `json:"messages_processed"`
	MessagesSkipped     int       `json:"messages_skipped"`
	DatesExtracted      int       `json:"dates_extracted"`
	ConfirmationsSent   int       `json:"confirmations_sent"`
	RemindersScheduled  int       `json:"reminders_scheduled"`
	RemindersDispatched int       `json:"reminders_dispatched"`
	RemindersPending    int       `json:"reminders_pending"`
	DeliveryFailures    int       `json:"delivery_failures"`
	ErrorCount          int       `json:"error_count"`
}

// NewService wires the scheduling components on top of a storage backend
func NewService(cfg *config.Config, backend storage.StorageInterface, source sources.Source, notifier notifications.Notifier) *Service {
	loc := cfg.Location()
	store := reminders.NewStore(backend)
	formatter := notifications.NewFormatter(cfg.DiscordUserID, cfg.ReminderMinutesBefore, loc)

	return &Service{
		config:     cfg,
		store:      store,
		source:     source,
		notifier:   notifier,
		formatter:  formatter,
		engine:     scheduling.NewEngine(store, extractor.New(loc), formatter, notifier, cfg.LeadTime()),
		dispatcher: scheduling.NewDispatcher(store, formatter, notifier),
		metrics:    &Metrics{},
	}
}

// RunPollCycle fetches new booking emails and handles each one
func (s *Service) RunPollCycle(ctx context.Context) error {
	return s.PollCycle(ctx, time.Now())
}

// RunReminderCycle dispatches every reminder that is due
func (s *Service) RunReminderCycle(ctx context.Context) error {
	return s.ReminderCycle(ctx, time.Now())
}

// PollCycle is RunPollCycle at an explicit time. A store failure aborts the
// cycle; messages not yet marked processed are picked up again next time.
func (s *Service) PollCycle(ctx context.Context, now time.Time) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	log := logrus.WithFields(logrus.Fields{"cycle": "poll", "run_id": uuid.NewString()})
	log.Info("Starting poll cycle")

	emails, err := s.source.Search(ctx, s.config.EmailSubjectFilter, s.config.SearchWindow(), true)
	if err != nil {
		s.recordError()
		return fmt.Errorf("failed to fetch messages from %s: %w", s.source.GetName(), err)
	}

	log.Infof("Found %d candidate messages", len(emails))

	var tally Metrics
	tally.MessagesSeen = len(emails)
	defer func() { s.recordPoll(tally, now, time.Since(start)) }()

	for _, email := range emails {
		outcome, err := s.engine.OnNewMessage(ctx, email, now)
		if err != nil {
			s.recordError()
			return fmt.Errorf("failed to handle message %s: %w", email.ID, err)
		}
		tally.add(outcome)
	}

	log.Infof("Poll cycle completed in %v: %d processed, %d skipped, %d reminders scheduled",
		time.Since(start), tally.MessagesProcessed, tally.MessagesSkipped, tally.RemindersScheduled)
	return nil
}

// ReminderCycle is RunReminderCycle at an explicit time
func (s *Service) ReminderCycle(ctx context.Context, now time.Time) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	log := logrus.WithFields(logrus.Fields{"cycle": "reminders", "run_id": uuid.NewString()})
	log.Debug("Starting reminder cycle")

	result, err := s.dispatcher.DispatchDue(ctx, now)
	if err != nil {
		s.recordError()
		return fmt.Errorf("failed to dispatch reminders: %w", err)
	}

	s.recordReminders(result, now)

	if result.Dispatched+result.Failed > 0 {
		log.Infof("Dispatched %d reminders (%d failed), %d pending", result.Dispatched, result.Failed, result.Pending)
	}
	return nil
}

// SendTestNotification posts a setup-check payload through the notifier
func (s *Service) SendTestNotification(ctx context.Context) error {
	return s.notifier.Send(ctx, s.formatter.FormatSetupCheck())
}

// Store exposes the reminder store for inspection tooling
func (s *Service) Store() *reminders.Store {
	return s.store
}

func (m *Metrics) add(o scheduling.Outcome) {
	if o.Skipped {
		m.MessagesSkipped++
		return
	}
	m.MessagesProcessed++
	if o.DateFound {
		m.DatesExtracted++
	}
	if o.Confirmed {
		m.ConfirmationsSent++
	}
	if o.DeliveryFailed {
		m.DeliveryFailures++
	}
	if o.ReminderScheduled {
		m.RemindersScheduled++
	}
}

func (s *Service) recordPoll(tally Metrics, now time.Time, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.PollRuns++
	s.metrics.LastPollRun = now
	s.metrics.LastPollDuration = duration.String()
	s.metrics.MessagesSeen += tally.MessagesSeen
	s.metrics.MessagesProcessed += tally.MessagesProcessed
	s.metrics.MessagesSkipped += tally.MessagesSkipped
	s.metrics.DatesExtracted += tally.DatesExtracted
	s.metrics.ConfirmationsSent += tally.ConfirmationsSent
	s.metrics.RemindersScheduled += tally.RemindersScheduled
	s.metrics.DeliveryFailures += tally.DeliveryFailures
}

func (s *Service) recordReminders(result scheduling.DispatchResult, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.ReminderRuns++
	s.metrics.LastReminderRun = now
	s.metrics.RemindersDispatched += result.Dispatched
	s.metrics.DeliveryFailures += result.Failed
	s.metrics.RemindersPending = result.Pending
}

func (s *Service) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.ErrorCount++
}

// Snapshot returns a copy of the current metrics
func (s *Service) Snapshot() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return *s.metrics
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
