//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/dermotduffy/restic-exporter/internal/services/export"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func getTelegramConfig(t *testing.T) *models.TelegramConfig {
	t.Helper()

	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	chatID := os.Getenv("TEST_TELEGRAM_CHAT_ID")
	if chatID == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	return &models.TelegramConfig{
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func testSummary() *models.BackupSummary {
	dataBlobs := int64(849)
	treeBlobs := int64(14)
	return &models.BackupSummary{
		Key: &models.SnapshotKey{
			Hostname:   "e2e-test-host",
			Paths:      []string{"/data"},
			Tags:       []string{"e2e"},
			SnapshotID: "abc123def456",
		},
		FilesNew:        100,
		FilesChanged:    50,
		FilesUnmodified: 5000,
		DataBlobs:       &dataBlobs,
		TreeBlobs:       &treeBlobs,
		DataAdded:       1024 * 1024 * 50,
		FilesProcessed:  5150,
		BytesProcessed:  1024 * 1024 * 1024 * 2,
		Duration:        300.5,
	}
}

func TestTelegramNotification_WithHTTPTarget_E2E(t *testing.T) {
	// Stand-in for the Telegram API so the full request cycle runs
	// without a real bot.
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &models.TelegramConfig{BotToken: "123456:ABC", ChatID: "-100123456789"}
	svc := export.NewTelegramWithClient(testLogger(), cfg, server.Client(), server.URL)

	err := svc.Export(context.Background(), []models.Record{testSummary()})

	require.NoError(t, err)
	assert.Equal(t, "/bot123456:ABC/sendMessage", gotPath)
	assert.Equal(t, "-100123456789", gotBody["chat_id"])
	assert.Equal(t, "HTML", gotBody["parse_mode"])
	assert.Contains(t, gotBody["text"], "Backup Completed")
	assert.Contains(t, gotBody["text"], "e2e-test-host")
}

func TestTelegramNotification_ServerError_E2E(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := &models.TelegramConfig{BotToken: "123456:ABC", ChatID: "-100123456789"}
	svc := export.NewTelegramWithClient(testLogger(), cfg, server.Client(), server.URL)

	err := svc.Export(context.Background(), []models.Record{testSummary()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram API returned status 500")
}

func TestTelegramSendSummary_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := export.NewTelegram(testLogger(), cfg)
	err := svc.Export(context.Background(), []models.Record{testSummary()})

	require.NoError(t, err)
}

func TestTelegramInvalidToken_E2E(t *testing.T) {
	cfg := &models.TelegramConfig{
		BotToken: "invalid:token",
		ChatID:   "-100123456789",
	}

	svc := export.NewTelegram(testLogger(), cfg)
	err := svc.Export(context.Background(), []models.Record{testSummary()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram API returned status")
}
