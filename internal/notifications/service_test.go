package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/fortytwo/review-notifier/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Send(t *testing.T) {
	var received models.WebhookPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	service := NewService(&config.Config{DiscordWebhookURL: server.URL})
	payload := &models.WebhookPayload{
		Content: "<@1>",
		Embeds: []models.Embed{{
			Title:  "hello",
			Color:  ReminderColor,
			Fields: []models.EmbedField{{Name: "a", Value: "b", Inline: true}},
		}},
	}

	err := service.Send(context.Background(), payload)

	require.NoError(t, err)
	assert.Equal(t, *payload, received)
}

func TestService_Send_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid Form Body"}`))
	}))
	defer server.Close()

	service := NewService(&config.Config{DiscordWebhookURL: server.URL})

	err := service.Send(context.Background(), &models.WebhookPayload{Content: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestService_Send_NoWebhook(t *testing.T) {
	service := NewService(&config.Config{})

	err := service.Send(context.Background(), &models.WebhookPayload{})

	assert.Error(t, err)
}
