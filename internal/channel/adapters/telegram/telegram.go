// Package telegram implements the Telegram Bot API adapter.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/common"
)

// Type is the registered ChannelType for Telegram.
const Type = channel.Telegram

const telegramMaxMessageLength = 4096

// tgbotapi keeps a package-level logger.
var setBotLoggerOnce sync.Once

// Options configures a TelegramAdapter.
type Options struct {
	BotToken string
	// APIEndpoint overrides tgbotapi.APIEndpoint, mostly for tests.
	APIEndpoint string
	HTTPClient  *http.Client
}

// TelegramAdapter implements channel.Normalizer and channel.Sender for Telegram.
type TelegramAdapter struct {
	logger   *slog.Logger
	token    string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger, opts Options) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	adapter := &TelegramAdapter{
		logger:   log.With(slog.String("adapter", "telegram")),
		token:    strings.TrimSpace(opts.BotToken),
		endpoint: endpoint,
		client:   client,
	}
	setBotLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	})
	return adapter
}

// getOrCreateBot builds the API client on first use. NewBotAPI calls getMe,
// so a bad token surfaces on the first send instead of at startup.
func (a *TelegramAdapter) getOrCreateBot() (*tgbotapi.BotAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	if a.token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(a.token, a.endpoint, a.client)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bot = bot
	return bot, nil
}

func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		Webhook:     true,
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit: telegramMaxMessageLength,
		},
	}
}

// Normalize converts a webhook update. Updates without a message, or whose
// sender is unknown, are ignored.
func (a *TelegramAdapter) Normalize(raw []byte) ([]channel.Inbound, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, fmt.Errorf("decode telegram update: %w", err)
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil, nil
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = channel.UnsupportedContentText
	}
	meta := map[string]any{
		"update_id":  update.UpdateID,
		"message_id": msg.MessageID,
	}
	if msg.Chat != nil {
		meta["chat_id"] = msg.Chat.ID
		meta["chat_type"] = msg.Chat.Type
	}
	if name := strings.TrimSpace(msg.From.UserName); name != "" {
		meta["username"] = name
	}
	received := time.Now().UTC()
	if msg.Date > 0 {
		received = time.Unix(int64(msg.Date), 0).UTC()
	}
	a.logger.Debug("inbound received", slog.String("user_id", senderID), slog.String("text", common.SummarizeText(text)))
	return []channel.Inbound{{
		Channel:    Type,
		ThreadName: channel.ThreadName(Type, senderID),
		SenderID:   senderID,
		Text:       text,
		Meta:       meta,
		ReceivedAt: received,
	}}, nil
}

// Send delivers photos first, then the text in 4096-rune chunks. Photos are
// always uploaded as bytes. A photo that fails is logged and skipped.
func (a *TelegramAdapter) Send(ctx context.Context, msg channel.Outbound) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Recipient), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target must be a numeric chat id")
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	for _, ref := range msg.Images {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.sendPhoto(ctx, bot, chatID, ref); err != nil {
			a.logger.Warn("send photo failed, continuing with text", slog.Int64("chat_id", chatID), slog.Any("error", err))
		}
	}
	policy := channel.NormalizeOutboundPolicy(a.Descriptor().OutboundPolicy)
	for _, chunk := range policy.Chunks(msg.Text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := bot.Send(tgbotapi.NewMessage(chatID, sanitizeTelegramText(chunk))); err != nil {
			return fmt.Errorf("send telegram text: %w", err)
		}
	}
	return nil
}

func (a *TelegramAdapter) sendPhoto(ctx context.Context, bot *tgbotapi.BotAPI, chatID int64, ref string) error {
	file, err := a.telegramFile(ctx, ref)
	if err != nil {
		return err
	}
	_, err = bot.Send(tgbotapi.NewPhoto(chatID, file))
	return err
}

// telegramFile resolves ref to bytes and uploads them, so private or
// relative URLs never have to be reachable from Telegram.
func (a *TelegramAdapter) telegramFile(ctx context.Context, ref string) (tgbotapi.RequestFileData, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("image reference is required")
	}
	img, err := common.LoadImage(ctx, a.client, ref)
	if err != nil {
		return nil, err
	}
	return tgbotapi.FileBytes{Name: img.Name, Bytes: img.Data}, nil
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
