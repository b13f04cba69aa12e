package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/rs/zerolog"
)

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Telegram sends one notification message per backup summary in the
// batch. All other record kinds are ignored.
type Telegram struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	cfg        *models.TelegramConfig
	baseURL    string
}

// NewTelegram creates the Telegram sink.
func NewTelegram(logger zerolog.Logger, cfg *models.TelegramConfig) *Telegram {
	return &Telegram{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		cfg:     cfg,
		baseURL: "https://api.telegram.org",
	}
}

// NewTelegramWithClient creates the Telegram sink with a custom HTTP
// client (for testing).
func NewTelegramWithClient(logger zerolog.Logger, cfg *models.TelegramConfig, httpClient HTTPClient, baseURL string) *Telegram {
	return &Telegram{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
		baseURL:    baseURL,
	}
}

// Start is a no-op; requests are made per notification.
func (s *Telegram) Start(_ context.Context) error {
	return nil
}

// Export sends a notification for every backup summary in the batch.
func (s *Telegram) Export(ctx context.Context, records []models.Record) error {
	for _, record := range records {
		summary, ok := record.(*models.BackupSummary)
		if !ok {
			continue
		}
		if err := s.send(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}

// sendMessageRequest is the request body for the Telegram sendMessage
// API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (s *Telegram) send(ctx context.Context, summary *models.BackupSummary) error {
	reqBody := sendMessageRequest{
		ChatID:    s.cfg.ChatID,
		Text:      formatSummary(summary),
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal telegram request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	s.logger.Info().
		Str("chat_id", s.cfg.ChatID).
		Str("snapshot_id", summary.Key.SnapshotID).
		Msg("Telegram notification sent")
	return nil
}

func formatSummary(summary *models.BackupSummary) string {
	var b bytes.Buffer

	b.WriteString("✅ <b>Backup Completed</b>\n\n")
	b.WriteString(fmt.Sprintf("🖥 <b>Host:</b> %s\n", escapeHTML(summary.Key.Hostname)))
	b.WriteString(fmt.Sprintf("📁 <b>Paths:</b> %s\n", escapeHTML(strings.Join(summary.Key.Paths, ", "))))
	if len(summary.Key.Tags) > 0 {
		b.WriteString(fmt.Sprintf("🏷 <b>Tags:</b> %s\n", escapeHTML(strings.Join(summary.Key.Tags, ", "))))
	}

	b.WriteString("\n<b>📊 Backup Statistics:</b>\n")
	b.WriteString(fmt.Sprintf("  • Snapshot: <code>%s</code>\n", escapeHTML(summary.Key.SnapshotID)))
	b.WriteString(fmt.Sprintf("  • Files new: %d\n", summary.FilesNew))
	b.WriteString(fmt.Sprintf("  • Files changed: %d\n", summary.FilesChanged))
	b.WriteString(fmt.Sprintf("  • Files unmodified: %d\n", summary.FilesUnmodified))
	b.WriteString(fmt.Sprintf("  • Data added: %s\n", formatBytes(summary.DataAdded)))
	b.WriteString(fmt.Sprintf("  • Total files: %d\n", summary.FilesProcessed))
	b.WriteString(fmt.Sprintf("  • Total size: %s\n", formatBytes(summary.BytesProcessed)))

	duration := time.Duration(summary.Duration * float64(time.Second)).Round(time.Second)
	b.WriteString(fmt.Sprintf("  • Duration: %s\n", duration))

	return b.String()
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
