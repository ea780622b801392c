package telegram

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/omnidesk/omnidesk/internal/channel"
)

type botCall struct {
	Method string
	ChatID string
	Text   string
	Photo  string
	Upload bool
}

type fakeBotAPI struct {
	mu        sync.Mutex
	calls     []botCall
	failPhoto bool
}

func (f *fakeBotAPI) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/img/") {
			if r.URL.Path == "/img/missing.png" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png"))
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		method := parts[len(parts)-1]
		w.Header().Set("Content-Type", "application/json")
		if method == "getMe" {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Desk","username":"deskbot"}}`))
			return
		}
		call := botCall{Method: method}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			_ = r.ParseMultipartForm(1 << 20)
			call.Upload = true
		} else {
			_ = r.ParseForm()
		}
		call.ChatID = r.FormValue("chat_id")
		call.Text = r.FormValue("text")
		call.Photo = r.FormValue("photo")
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()
		if method == "sendPhoto" && f.failPhoto {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: wrong file"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":55,"type":"private"}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(t *testing.T, f *fakeBotAPI) (*TelegramAdapter, string) {
	t.Helper()
	srv := f.serve(t)
	return NewTelegramAdapter(nil, Options{
		BotToken:    "123:abc",
		APIEndpoint: srv.URL + "/bot%s/%s",
		HTTPClient:  srv.Client(),
	}), srv.URL
}

func TestNormalizeTextUpdate(t *testing.T) {
	t.Parallel()
	adapter := NewTelegramAdapter(nil, Options{})
	raw := `{"update_id":10,"message":{"message_id":3,"date":1700000000,"from":{"id":55,"is_bot":false,"first_name":"A","username":"alice"},"chat":{"id":55,"type":"private"},"text":" xin chào "}}`
	msgs, err := adapter.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.ThreadName != "T-55" || msg.SenderID != "55" || msg.Text != "xin chào" {
		t.Fatalf("unexpected inbound: %+v", msg)
	}
	if msg.Meta["username"] != "alice" {
		t.Fatalf("unexpected meta: %v", msg.Meta)
	}
}

func TestNormalizeNonTextUpdate(t *testing.T) {
	t.Parallel()
	adapter := NewTelegramAdapter(nil, Options{})
	raw := `{"update_id":11,"message":{"message_id":4,"date":1,"from":{"id":55},"chat":{"id":55,"type":"private"},"photo":[{"file_id":"f","width":1,"height":1}]}}`
	msgs, err := adapter.Normalize([]byte(raw))
	if err != nil || len(msgs) != 1 {
		t.Fatalf("normalize: %v %v", msgs, err)
	}
	if msgs[0].Text != channel.UnsupportedContentText {
		t.Fatalf("expected unsupported text, got %q", msgs[0].Text)
	}
}

func TestNormalizeIgnoresNonMessageUpdates(t *testing.T) {
	t.Parallel()
	msgs, err := NewTelegramAdapter(nil, Options{}).Normalize([]byte(`{"update_id":12,"edited_message":{"message_id":1,"date":1,"chat":{"id":1}}}`))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestSendTextAndPhotos(t *testing.T) {
	t.Parallel()
	f := &fakeBotAPI{}
	adapter, base := newTestAdapter(t, f)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))

	err := adapter.Send(context.Background(), channel.Outbound{
		Channel:   channel.Telegram,
		Recipient: "55",
		Text:      "hello",
		Images:    []string{base + "/img/a.png", dataURL},
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(f.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d: %+v", len(f.calls), f.calls)
	}
	if f.calls[0].Method != "sendPhoto" || !f.calls[0].Upload || f.calls[0].Photo != "" {
		t.Fatalf("url photo should be fetched and uploaded as bytes: %+v", f.calls[0])
	}
	if f.calls[1].Method != "sendPhoto" || !f.calls[1].Upload {
		t.Fatalf("data url should be uploaded as bytes: %+v", f.calls[1])
	}
	if f.calls[2].Method != "sendMessage" || f.calls[2].Text != "hello" || f.calls[2].ChatID != "55" {
		t.Fatalf("unexpected text call: %+v", f.calls[2])
	}
}

func TestSendPhotoFailureStillSendsText(t *testing.T) {
	t.Parallel()
	f := &fakeBotAPI{failPhoto: true}
	adapter, base := newTestAdapter(t, f)
	if err := adapter.Send(context.Background(), channel.Outbound{Recipient: "55", Text: "hi", Images: []string{base + "/img/a.png"}}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if last := f.calls[len(f.calls)-1]; last.Method != "sendMessage" {
		t.Fatalf("expected text after failed photo, got %+v", last)
	}
}

func TestSendRejectsNonNumericTarget(t *testing.T) {
	t.Parallel()
	adapter := NewTelegramAdapter(nil, Options{BotToken: "x"})
	if err := adapter.Send(context.Background(), channel.Outbound{Recipient: "@alice", Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTelegramFileUploadsBytes(t *testing.T) {
	t.Parallel()
	adapter, base := newTestAdapter(t, &fakeBotAPI{})
	ctx := context.Background()

	file, err := adapter.telegramFile(ctx, base+"/img/a.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb, ok := file.(tgbotapi.FileBytes)
	if !ok {
		t.Fatalf("expected FileBytes, got %T", file)
	}
	if fb.Name != "a.png" || string(fb.Bytes) != "png" {
		t.Fatalf("unexpected file: %s %q", fb.Name, fb.Bytes)
	}
	if _, err := adapter.telegramFile(ctx, base+"/img/missing.png"); err == nil {
		t.Fatal("expected error for missing image")
	}
	if _, err := adapter.telegramFile(ctx, " "); err == nil {
		t.Fatal("expected error for empty ref")
	}
}
