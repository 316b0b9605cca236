package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dbbackup/internal/config"
	"github.com/semmidev/dbbackup/internal/domain"
)

// maxDocumentBytes is the Bot API upload limit for documents.
const maxDocumentBytes = 50 * 1024 * 1024

// TelegramStorage posts published dumps to a chat. It cannot list or delete
// what it sent, so its retention operations report errors.ErrUnsupported.
type TelegramStorage struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	sendFile   bool
	notifyOnly bool
}

func NewTelegram(cfg *config.UploadTarget) (*TelegramStorage, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat_id %q: %w", cfg.ChatID, err)
	}

	endpoint := tgbotapi.APIEndpoint
	if cfg.Endpoint != "" {
		endpoint = strings.TrimSuffix(cfg.Endpoint, "/") + "/bot%s/%s"
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: time.Minute})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramStorage{
		bot:        bot,
		chatID:     chatID,
		sendFile:   cfg.SendFile,
		notifyOnly: cfg.NotifyOnly,
	}, nil
}

// Upload sends the dump as a document, or a summary message when the file is
// too large or the target is configured for notifications only.
func (t *TelegramStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if t.notifyOnly || !t.sendFile || info.Size() > maxDocumentBytes {
		text := fmt.Sprintf("✅ Dump published\n\n📁 File: %s\n📊 Size: %s\n🕐 Time: %s",
			remoteName, domain.FormatSize(info.Size()), info.ModTime().Format("2006-01-02 15:04:05"))
		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
			return fmt.Errorf("failed to send telegram notification: %w", err)
		}
		return nil
	}

	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(localPath))
	doc.Caption = fmt.Sprintf("📦 %s (%s)", remoteName, domain.FormatSize(info.Size()))
	if _, err := t.bot.Send(doc); err != nil {
		return fmt.Errorf("failed to send telegram file: %w", err)
	}
	return nil
}

// Exists cannot be answered: the Bot API offers no way to enumerate or remove
// messages already sent.
func (t *TelegramStorage) Exists(ctx context.Context, remoteName string) (bool, error) {
	return false, fmt.Errorf("telegram exists: %w", errors.ErrUnsupported)
}

func (t *TelegramStorage) List(ctx context.Context) ([]string, error) {
	return nil, fmt.Errorf("telegram list: %w", errors.ErrUnsupported)
}

func (t *TelegramStorage) Delete(ctx context.Context, remoteName string) error {
	return fmt.Errorf("telegram delete %s: %w", remoteName, errors.ErrUnsupported)
}

func (t *TelegramStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	return nil, fmt.Errorf("telegram list old files: %w", errors.ErrUnsupported)
}

// SendNotification delivers a plain text message, used for failed backups.
func (t *TelegramStorage) SendNotification(message string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, message)); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
