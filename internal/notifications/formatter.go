package notifications

import (
	"fmt"
	"regexp"
	"time"

	"github.com/fortytwo/review-notifier/internal/models"
)

const (
	ConfirmationColor = 0x00babc
	ReminderColor     = 0xe74c3c
	SetupColor        = 0x2ecc71

	// DisplayLayout is how appointment times are shown in alerts
	DisplayLayout = "2006-01-02 15:04"
)

var durationPattern = regexp.MustCompile(`(?i)for\s+(\d+)\s+minutes`)

// Formatter builds webhook payloads for booking confirmations and reminders
type Formatter struct {
	recipientID string
	leadMinutes int
	location    *time.Location
}

// NewFormatter creates a formatter that mentions recipientID and displays
// times in loc
func NewFormatter(recipientID string, leadMinutes int, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{
		recipientID: recipientID,
		leadMinutes: leadMinutes,
		location:    loc,
	}
}

// FormatConfirmation builds the "booking confirmed" alert. The time and
// reminder fields are present only when eventTime is non-nil.
func (f *Formatter) FormatConfirmation(subject, body string, eventTime *time.Time, now time.Time) *models.WebhookPayload {
	embed := models.Embed{
		Title:       "🔔 42 Evaluation booking confirmed",
		Description: subject,
		Color:       ConfirmationColor,
		Fields:      []models.EmbedField{},
		Timestamp:   now.UTC().Format(time.RFC3339),
	}

	if eventTime != nil {
		embed.Fields = append(embed.Fields, models.EmbedField{
			Name:  "📅 Scheduled time",
			Value: f.displayTime(*eventTime),
		})
	}

	if duration, ok := ExtractDuration(body); ok {
		embed.Fields = append(embed.Fields, models.EmbedField{
			Name:   "⏱️ Duration",
			Value:  duration,
			Inline: true,
		})
	}

	if eventTime != nil {
		embed.Fields = append(embed.Fields, models.EmbedField{
			Name:  "⏰ Reminder",
			Value: fmt.Sprintf("You will be mentioned %d minutes before", f.leadMinutes),
		})
	}

	return &models.WebhookPayload{
		Content: f.mention(),
		Embeds:  []models.Embed{embed},
	}
}

// FormatReminder builds the alert sent shortly before the appointment
func (f *Formatter) FormatReminder(subject string, eventTime time.Time, now time.Time) *models.WebhookPayload {
	return &models.WebhookPayload{
		Content: f.mention(),
		Embeds: []models.Embed{{
			Title: fmt.Sprintf("⏰ %d minutes until your appointment!", f.leadMinutes),
			Color: ReminderColor,
			Fields: []models.EmbedField{
				{Name: "Subject", Value: subject},
				{Name: "Scheduled time", Value: f.displayTime(eventTime)},
			},
			Timestamp: now.UTC().Format(time.RFC3339),
		}},
	}
}

// FormatSetupCheck builds the payload used to verify webhook configuration
func (f *Formatter) FormatSetupCheck() *models.WebhookPayload {
	return &models.WebhookPayload{
		Content: f.mention() + " This is a test notification. Setup is complete!",
		Embeds: []models.Embed{{
			Title:       "✅ Setup complete",
			Description: "Gmail → Discord notifications are configured correctly.",
			Color:       SetupColor,
			Fields:      []models.EmbedField{},
		}},
	}
}

// ExtractDuration finds a "for N minutes" phrase and returns "N minutes"
func ExtractDuration(body string) (string, bool) {
	m := durationPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1] + " minutes", true
}

func (f *Formatter) mention() string {
	return fmt.Sprintf("<@%s>", f.recipientID)
}

func (f *Formatter) displayTime(t time.Time) string {
	return t.In(f.location).Format(DisplayLayout)
}
