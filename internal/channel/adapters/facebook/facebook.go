// Package facebook implements the Messenger adapter over the Graph API.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/common"
)

// Type is the registered ChannelType for Messenger.
const Type = channel.Facebook

const facebookMaxMessageLength = 2000

// ErrNoPageToken is returned when no access token is known for a page.
var ErrNoPageToken = errors.New("facebook page token not found")

// Options configures a FacebookAdapter.
type Options struct {
	GraphBaseURL string
	Tokens       TokenStore
	HTTPClient   *http.Client
}

// FacebookAdapter implements channel.Normalizer and channel.Sender for Messenger.
type FacebookAdapter struct {
	logger  *slog.Logger
	baseURL string
	tokens  TokenStore
	client  *http.Client
	now     func() time.Time
}

// NewFacebookAdapter creates a FacebookAdapter with the given logger and options.
func NewFacebookAdapter(log *slog.Logger, opts Options) *FacebookAdapter {
	if log == nil {
		log = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = StaticTokens{}
	}
	return &FacebookAdapter{
		logger:  log.With(slog.String("adapter", "facebook")),
		baseURL: strings.TrimRight(opts.GraphBaseURL, "/"),
		tokens:  tokens,
		client:  client,
		now:     time.Now,
	}
}

func (a *FacebookAdapter) Type() channel.ChannelType {
	return Type
}

func (a *FacebookAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Facebook Messenger",
		Webhook:     true,
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit: facebookMaxMessageLength,
		},
	}
}

type webhookBody struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []messagingEvent `json:"messaging"`
}

type messagingEvent struct {
	Sender    struct{ ID string `json:"id"` } `json:"sender"`
	Recipient struct{ ID string `json:"id"` } `json:"recipient"`
	Timestamp int64                           `json:"timestamp"`
	Message   *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type string `json:"type"`
		} `json:"attachments"`
	} `json:"message"`
}

// Normalize converts a page webhook body into inbound messages. Echoes of the
// page's own messages and non-message events are skipped.
func (a *FacebookAdapter) Normalize(raw []byte) ([]channel.Inbound, error) {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode facebook webhook: %w", err)
	}
	var out []channel.Inbound
	for _, entry := range body.Entry {
		for _, ev := range entry.Messaging {
			if ev.Message == nil || ev.Message.IsEcho {
				continue
			}
			senderID := strings.TrimSpace(ev.Sender.ID)
			if senderID == "" {
				continue
			}
			pageID := strings.TrimSpace(entry.ID)
			if pageID == "" {
				pageID = strings.TrimSpace(ev.Recipient.ID)
			}
			text := strings.TrimSpace(ev.Message.Text)
			if text == "" {
				text = channel.UnsupportedContentText
			}
			received := a.now().UTC()
			if ev.Timestamp > 0 {
				received = time.UnixMilli(ev.Timestamp).UTC()
			}
			meta := map[string]any{"mid": ev.Message.MID}
			if n := len(ev.Message.Attachments); n > 0 {
				meta["attachment_count"] = n
			}
			out = append(out, channel.Inbound{
				Channel:    Type,
				ThreadName: channel.ThreadName(Type, senderID),
				SenderID:   senderID,
				PageID:     pageID,
				Text:       text,
				Meta:       meta,
				ReceivedAt: received,
			})
		}
	}
	return out, nil
}

// Send pushes images first, then the text split into Messenger-sized chunks.
// An image that cannot be uploaded is skipped so the text still goes out.
func (a *FacebookAdapter) Send(ctx context.Context, msg channel.Outbound) error {
	pageID := strings.TrimSpace(msg.PageID)
	if pageID == "" {
		return fmt.Errorf("facebook page id is required")
	}
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return fmt.Errorf("facebook recipient is required")
	}
	token, err := a.tokens.PageToken(ctx, pageID)
	if err != nil {
		return err
	}

	for _, ref := range msg.Images {
		if err := a.sendImage(ctx, token, recipient, ref); err != nil {
			a.logger.Warn("send image failed, continuing with text",
				slog.String("page_id", pageID),
				slog.Any("error", err),
			)
		}
	}

	policy := channel.NormalizeOutboundPolicy(a.Descriptor().OutboundPolicy)
	for _, chunk := range policy.Chunks(msg.Text) {
		payload := map[string]any{
			"recipient": map[string]string{"id": recipient},
			"message":   map[string]string{"text": chunk},
		}
		if err := a.postJSON(ctx, a.endpoint(pageID+"/messages", token), payload, nil); err != nil {
			return fmt.Errorf("send facebook text: %w", err)
		}
	}
	return nil
}

func (a *FacebookAdapter) sendImage(ctx context.Context, token, recipient, ref string) error {
	img, err := common.LoadImage(ctx, a.client, ref)
	if err != nil {
		return err
	}
	attachmentID, err := a.uploadAttachment(ctx, token, img)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"recipient": map[string]string{"id": recipient},
		"message": map[string]any{
			"attachment": map[string]any{
				"type":    "image",
				"payload": map[string]string{"attachment_id": attachmentID},
			},
		},
	}
	return a.postJSON(ctx, a.endpoint("me/messages", token), payload, nil)
}

func (a *FacebookAdapter) uploadAttachment(ctx context.Context, token string, img common.Image) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("message", `{"attachment":{"type":"image","payload":{"is_reusable":true}}}`); err != nil {
		return "", err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="filedata"; filename=%q`, img.Name))
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("me/message_attachments", token), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out struct {
		AttachmentID string `json:"attachment_id"`
	}
	if err := a.do(req, &out); err != nil {
		return "", fmt.Errorf("upload facebook attachment: %w", err)
	}
	if out.AttachmentID == "" {
		return "", fmt.Errorf("upload facebook attachment: empty attachment_id")
	}
	return out.AttachmentID, nil
}

func (a *FacebookAdapter) endpoint(path, token string) string {
	return a.baseURL + "/" + path + "?access_token=" + url.QueryEscape(token)
}

func (a *FacebookAdapter) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *FacebookAdapter) do(req *http.Request, out any) error {
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
		var graphErr struct {
			Error struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &graphErr) == nil && graphErr.Error.Message != "" {
			return fmt.Errorf("graph api status %d: %s (code %d)", resp.StatusCode, graphErr.Error.Message, graphErr.Error.Code)
		}
		return fmt.Errorf("graph api status %d", resp.StatusCode)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
