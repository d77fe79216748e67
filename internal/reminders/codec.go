package reminders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fortytwo/review-notifier/internal/models"
)

// SchemaVersion identifies the layout of the persisted records below.
// Bump it together with the record types when the layout changes.
const SchemaVersion = "1"

type reminderRecord struct {
	SourceID  string `json:"sourceId"`
	Subject   string `json:"subject"`
	EventTime string `json:"eventTime"`
	FireTime  string `json:"fireTime"`
}

// EncodeReminders serializes reminders as a JSON array with ISO-8601 UTC times
func EncodeReminders(reminders []models.Reminder) ([]byte, error) {
	records := make([]reminderRecord, 0, len(reminders))
	for _, r := range reminders {
		records = append(records, reminderRecord{
			SourceID:  r.SourceID,
			Subject:   r.Subject,
			EventTime: r.EventTime.UTC().Format(time.RFC3339Nano),
			FireTime:  r.FireTime.UTC().Format(time.RFC3339Nano),
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reminders: %w", err)
	}
	return data, nil
}

// DecodeReminders parses the output of EncodeReminders
func DecodeReminders(data []byte) ([]models.Reminder, error) {
	var records []reminderRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reminders: %w", err)
	}

	reminders := make([]models.Reminder, 0, len(records))
	for i, rec := range records {
		eventTime, err := time.Parse(time.RFC3339Nano, rec.EventTime)
		if err != nil {
			return nil, fmt.Errorf("reminder %d has invalid eventTime: %w", i, err)
		}
		fireTime, err := time.Parse(time.RFC3339Nano, rec.FireTime)
		if err != nil {
			return nil, fmt.Errorf("reminder %d has invalid fireTime: %w", i, err)
		}

		reminders = append(reminders, models.Reminder{
			SourceID:  rec.SourceID,
			Subject:   rec.Subject,
			EventTime: eventTime,
			FireTime:  fireTime,
		})
	}

	return reminders, nil
}

// EncodeProcessedIDs serializes the processed set as a JSON array, oldest first
func EncodeProcessedIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processed ids: %w", err)
	}
	return data, nil
}

// DecodeProcessedIDs parses the output of EncodeProcessedIDs
func DecodeProcessedIDs(data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processed ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
