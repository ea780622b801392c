// Package zalo implements the Zalo Official Account adapter.
package zalo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/common"
)

// Type is the registered ChannelType for Zalo.
const Type = channel.Zalo

const (
	eventUserSendText = "user_send_text"
	uploadImagePath   = "/v2.0/oa/upload/image"
	sendMessagePath   = "/v3.0/oa/message/cs"
)

// Options configures a ZaloAdapter.
type Options struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

// ZaloAdapter implements channel.Normalizer and channel.Sender for Zalo OA.
type ZaloAdapter struct {
	logger  *slog.Logger
	baseURL string
	token   string
	client  *http.Client
	now     func() time.Time
}

// NewZaloAdapter creates a ZaloAdapter with the given logger and options.
func NewZaloAdapter(log *slog.Logger, opts Options) *ZaloAdapter {
	if log == nil {
		log = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ZaloAdapter{
		logger:  log.With(slog.String("adapter", "zalo")),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   strings.TrimSpace(opts.AccessToken),
		client:  client,
		now:     time.Now,
	}
}

func (a *ZaloAdapter) Type() channel.ChannelType {
	return Type
}

func (a *ZaloAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Zalo OA",
		Webhook:     true,
		OutboundPolicy: channel.OutboundPolicy{
			MaxImages: 1,
		},
	}
}

type webhookEvent struct {
	EventName string `json:"event_name"`
	AppID     string `json:"app_id"`
	Timestamp string `json:"timestamp"`
	Sender    struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		MsgID string `json:"msg_id"`
		Text  string `json:"text"`
	} `json:"message"`
}

// Normalize converts an OA webhook event. Only user_send_text keeps its text;
// every other user event becomes the unsupported-content notice.
func (a *ZaloAdapter) Normalize(raw []byte) ([]channel.Inbound, error) {
	var ev webhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode zalo webhook: %w", err)
	}
	senderID := strings.TrimSpace(ev.Sender.ID)
	if senderID == "" || !strings.HasPrefix(ev.EventName, "user_") {
		return nil, nil
	}
	text := channel.UnsupportedContentText
	if ev.EventName == eventUserSendText {
		if t := strings.TrimSpace(ev.Message.Text); t != "" {
			text = t
		}
	}
	return []channel.Inbound{{
		Channel:    Type,
		ThreadName: channel.ThreadName(Type, senderID),
		SenderID:   senderID,
		PageID:     strings.TrimSpace(ev.Recipient.ID),
		Text:       text,
		Meta: map[string]any{
			"event_name": ev.EventName,
			"msg_id":     ev.Message.MsgID,
		},
		ReceivedAt: a.now().UTC(),
	}}, nil
}

// Send delivers one message. Zalo takes a single image per message, so only
// the first image is uploaded; if that upload or the media send fails the
// text is sent on its own.
func (a *ZaloAdapter) Send(ctx context.Context, msg channel.Outbound) error {
	if a.token == "" {
		return fmt.Errorf("zalo access token is not configured")
	}
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return fmt.Errorf("zalo recipient is required")
	}
	text := strings.TrimSpace(msg.Text)
	images := channel.NormalizeOutboundPolicy(a.Descriptor().OutboundPolicy).LimitImages(msg.Images)

	if len(images) > 0 {
		err := a.sendMedia(ctx, recipient, images[0], text)
		if err == nil {
			return nil
		}
		a.logger.Warn("send media failed, falling back to text", slog.String("recipient", recipient), slog.Any("error", err))
	}
	if text == "" {
		return fmt.Errorf("zalo message has no text")
	}
	return a.sendMessage(ctx, map[string]any{
		"recipient": map[string]string{"user_id": recipient},
		"message":   map[string]string{"text": text},
	})
}

func (a *ZaloAdapter) sendMedia(ctx context.Context, recipient, ref, text string) error {
	img, err := common.LoadImage(ctx, a.client, ref)
	if err != nil {
		return err
	}
	attachmentID, err := a.uploadImage(ctx, img)
	if err != nil {
		return err
	}
	message := map[string]any{
		"attachment": map[string]any{
			"type": "template",
			"payload": map[string]any{
				"template_type": "media",
				"elements": []map[string]string{
					{"media_type": "image", "attachment_id": attachmentID},
				},
			},
		},
	}
	if text != "" {
		message["text"] = text
	}
	return a.sendMessage(ctx, map[string]any{
		"recipient": map[string]string{"user_id": recipient},
		"message":   message,
	})
}

func (a *ZaloAdapter) uploadImage(ctx context.Context, img common.Image) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, img.Name))
	header.Set("Content-Type", img.Mime)
	part, err := w.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+uploadImagePath, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out struct {
		Data struct {
			AttachmentID string `json:"attachment_id"`
		} `json:"data"`
	}
	if err := a.do(req, &out); err != nil {
		return "", fmt.Errorf("upload zalo image: %w", err)
	}
	if out.Data.AttachmentID == "" {
		return "", fmt.Errorf("upload zalo image: empty attachment_id")
	}
	return out.Data.AttachmentID, nil
}

func (a *ZaloAdapter) sendMessage(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+sendMessagePath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := a.do(req, nil); err != nil {
		return fmt.Errorf("send zalo message: %w", err)
	}
	return nil
}

// do sets the access_token header and treats a non-zero "error" field as failure.
func (a *ZaloAdapter) do(req *http.Request, out any) error {
	req.Header.Set("access_token", a.token)
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("zalo api status %d", resp.StatusCode)
	}
	var status struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &status) == nil && status.Error != 0 {
		return fmt.Errorf("zalo api error %d: %s", status.Error, status.Message)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
