package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/fortytwo/review-notifier/internal/models"
	"github.com/fortytwo/review-notifier/internal/notifications"
	"github.com/fortytwo/review-notifier/internal/reminders"
	"github.com/fortytwo/review-notifier/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSource is a mock implementation of the message source
type MockSource struct {
	mock.Mock
}

func (m *MockSource) GetName() string {
	return "mock"
}

func (m *MockSource) IsEnabled() bool {
	return true
}

func (m *MockSource) Search(ctx context.Context, subjectFilter string, since time.Duration, unreadOnly bool) ([]models.Email, error) {
	args := m.Called(ctx, subjectFilter, since, unreadOnly)
	emails, _ := args.Get(0).([]models.Email)
	return emails, args.Error(1)
}

// RecordingNotifier keeps every payload it is asked to send
type RecordingNotifier struct {
	mu       sync.Mutex
	payloads []*models.WebhookPayload
	err      error
}

func (r *RecordingNotifier) Send(_ context.Context, payload *models.WebhookPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.payloads = append(r.payloads, payload)
	return r.err
}

func (r *RecordingNotifier) colors() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var colors []int
	for _, p := range r.payloads {
		colors = append(colors, p.Embeds[0].Color)
	}
	return colors
}

func testConfig() *config.Config {
	return &config.Config{
		TimeZone:              "UTC",
		EmailSubjectFilter:    "You have a new booking",
		SearchHours:           24,
		DiscordUserID:         "42",
		ReminderMinutesBefore: 10,
	}
}

var bookings = []models.Email{
	{ID: "m1", Subject: "You have a new booking", Body: "from December 07, 2025 11:45 for 30 minutes"},
	{ID: "m2", Subject: "You have a new booking", Body: "2025/12/07 09:05"},
	{ID: "m3", Subject: "You have a new booking", Body: "no date at all"},
}

func TestService_PollCycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.December, 7, 9, 0, 0, 0, time.UTC)

	source := &MockSource{}
	source.On("Search", ctx, "You have a new booking", 24*time.Hour, true).Return(bookings, nil)
	notifier := &RecordingNotifier{}

	service := NewService(testConfig(), storage.NewMemoryStorage(), source, notifier)

	require.NoError(t, service.PollCycle(ctx, now))

	// three confirmations, one reminder (m2 is already inside the lead window)
	assert.Equal(t, []int{notifications.ConfirmationColor, notifications.ConfirmationColor, notifications.ConfirmationColor}, notifier.colors())

	pending, err := service.Store().LoadReminders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].SourceID)

	ids, err := service.Store().LoadProcessedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)

	metrics := service.Snapshot()
	assert.Equal(t, 1, metrics.PollRuns)
	assert.Equal(t, 3, metrics.MessagesProcessed)
	assert.Equal(t, 2, metrics.DatesExtracted)
	assert.Equal(t, 1, metrics.RemindersScheduled)

	// the same messages come back on the next poll and are skipped
	require.NoError(t, service.PollCycle(ctx, now.Add(5*time.Minute)))
	assert.Len(t, notifier.colors(), 3)
	assert.Equal(t, 3, service.Snapshot().MessagesSkipped)

	source.AssertExpectations(t)
}

// failingBackend rejects writes to failKey
type failingBackend struct {
	*storage.MemoryStorage
	failKey string
}

func (b *failingBackend) Store(ctx context.Context, key string, data []byte) error {
	if key == b.failKey {
		return errors.New("storage unavailable")
	}
	return b.MemoryStorage.Store(ctx, key, data)
}

func TestService_PollCycleStopsAtStoreFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.December, 7, 9, 0, 0, 0, time.UTC)

	source := &MockSource{}
	source.On("Search", ctx, "You have a new booking", 24*time.Hour, true).Return(bookings, nil)
	notifier := &RecordingNotifier{}
	backend := &failingBackend{MemoryStorage: storage.NewMemoryStorage(), failKey: reminders.RemindersKey}

	service := NewService(testConfig(), backend, source, notifier)

	err := service.PollCycle(ctx, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m1")

	// m2 and m3 were never reached
	assert.Len(t, notifier.colors(), 1)
	ids, err := service.Store().LoadProcessedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, service.Snapshot().ErrorCount)

	backend.failKey = ""
	require.NoError(t, service.PollCycle(ctx, now.Add(5*time.Minute)))

	ids, err = service.Store().LoadProcessedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)

	pending, err := service.Store().LoadReminders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].SourceID)
}

func TestService_PollCycleSourceError(t *testing.T) {
	ctx := context.Background()

	source := &MockSource{}
	source.On("Search", ctx, mock.Anything, mock.Anything, true).Return(nil, errors.New("gmail down"))
	notifier := &RecordingNotifier{}

	service := NewService(testConfig(), storage.NewMemoryStorage(), source, notifier)

	err := service.PollCycle(ctx, time.Now())
	require.Error(t, err)
	assert.Empty(t, notifier.colors())
	assert.Equal(t, 1, service.Snapshot().ErrorCount)
}

func TestService_ReminderCycle(t *testing.T) {
	ctx := context.Background()
	received := time.Date(2025, time.December, 7, 9, 0, 0, 0, time.UTC)

	source := &MockSource{}
	source.On("Search", ctx, mock.Anything, mock.Anything, true).Return(bookings[:1], nil)
	notifier := &RecordingNotifier{}

	service := NewService(testConfig(), storage.NewMemoryStorage(), source, notifier)
	require.NoError(t, service.PollCycle(ctx, received))

	require.NoError(t, service.ReminderCycle(ctx, time.Date(2025, time.December, 7, 11, 34, 0, 0, time.UTC)))
	assert.Len(t, notifier.colors(), 1)

	require.NoError(t, service.ReminderCycle(ctx, time.Date(2025, time.December, 7, 11, 35, 0, 0, time.UTC)))
	assert.Equal(t, []int{notifications.ConfirmationColor, notifications.ReminderColor}, notifier.colors())

	require.NoError(t, service.ReminderCycle(ctx, time.Date(2025, time.December, 7, 11, 36, 0, 0, time.UTC)))
	assert.Len(t, notifier.colors(), 2)

	metrics := service.Snapshot()
	assert.Equal(t, 3, metrics.ReminderRuns)
	assert.Equal(t, 1, metrics.RemindersDispatched)
	assert.Equal(t, 0, metrics.RemindersPending)
}

func TestService_DeliveryFailuresAreCounted(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.December, 7, 9, 0, 0, 0, time.UTC)

	source := &MockSource{}
	source.On("Search", ctx, mock.Anything, mock.Anything, true).Return(bookings[:1], nil)
	notifier := &RecordingNotifier{err: errors.New("webhook down")}

	service := NewService(testConfig(), storage.NewMemoryStorage(), source, notifier)

	require.NoError(t, service.PollCycle(ctx, now))
	require.NoError(t, service.ReminderCycle(ctx, now.Add(3*time.Hour)))

	metrics := service.Snapshot()
	assert.Equal(t, 2, metrics.DeliveryFailures)
	assert.Equal(t, 0, metrics.ConfirmationsSent)
	assert.Equal(t, 0, metrics.RemindersDispatched)

	pending, err := service.Store().LoadReminders(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_SendTestNotification(t *testing.T) {
	notifier := &RecordingNotifier{}
	service := NewService(testConfig(), storage.NewMemoryStorage(), &MockSource{}, notifier)

	require.NoError(t, service.SendTestNotification(context.Background()))
	assert.Equal(t, []int{notifications.SetupColor}, notifier.colors())
}

func TestService_GetMetrics(t *testing.T) {
	service := NewService(testConfig(), storage.NewMemoryStorage(), &MockSource{}, &RecordingNotifier{})

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(service.GetMetrics()), &decoded))
	assert.Contains(t, decoded, "reminders_pending")
	assert.Contains(t, decoded, "messages_processed")
}
