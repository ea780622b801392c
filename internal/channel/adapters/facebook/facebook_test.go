package facebook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/omnidesk/omnidesk/internal/channel"
)

type graphCall struct {
	Path  string
	Token string
	Body  map[string]any
	Form  map[string]string
	File  []byte
}

type fakeGraph struct {
	mu        sync.Mutex
	calls     []graphCall
	failImage bool
}

func (g *fakeGraph) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := graphCall{Path: r.URL.Path, Token: r.URL.Query().Get("access_token")}
		if strings.HasSuffix(r.URL.Path, "/message_attachments") {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			call.Form = map[string]string{"message": r.FormValue("message")}
			f, _, err := r.FormFile("filedata")
			if err == nil {
				call.File, _ = io.ReadAll(f)
			}
			g.record(call)
			if g.failImage {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"message":"bad image","code":100}}`))
				return
			}
			_, _ = w.Write([]byte(`{"attachment_id":"att-1"}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
		g.record(call)
		_, _ = w.Write([]byte(`{"recipient_id":"1","message_id":"m"}`))
	})
}

func (g *fakeGraph) record(c graphCall) {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	g.mu.Unlock()
}

func newTestAdapter(t *testing.T, g *fakeGraph) *FacebookAdapter {
	t.Helper()
	srv := httptest.NewServer(g.handler(t))
	t.Cleanup(srv.Close)
	return NewFacebookAdapter(nil, Options{
		GraphBaseURL: srv.URL + "/v23.0",
		Tokens:       StaticTokens{"PAGE1": "tok-1"},
		HTTPClient:   srv.Client(),
	})
}

func TestNormalizeMessagingEvent(t *testing.T) {
	t.Parallel()
	adapter := NewFacebookAdapter(nil, Options{})
	raw := `{"object":"page","entry":[{"id":"PAGE1","time":1,"messaging":[
		{"sender":{"id":"PSID9"},"recipient":{"id":"PAGE1"},"timestamp":1700000000000,"message":{"mid":"m1","text":" hello "}},
		{"sender":{"id":"PAGE1"},"recipient":{"id":"PSID9"},"message":{"mid":"m2","text":"echo","is_echo":true}},
		{"sender":{"id":"PSID9"},"recipient":{"id":"PAGE1"},"delivery":{"mids":["m1"]}},
		{"sender":{"id":"PSID9"},"recipient":{"id":"PAGE1"},"message":{"mid":"m3","attachments":[{"type":"image"}]}}
	]}]}`
	msgs, err := adapter.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ThreadName != "F-PSID9" || msgs[0].PageID != "PAGE1" || msgs[0].Text != "hello" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[0].ReceivedAt.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected timestamp: %v", msgs[0].ReceivedAt)
	}
	if msgs[1].Text != channel.UnsupportedContentText {
		t.Fatalf("expected unsupported text, got %q", msgs[1].Text)
	}
}

func TestNormalizeSendRoundTripRoutesToSender(t *testing.T) {
	t.Parallel()
	g := &fakeGraph{}
	adapter := newTestAdapter(t, g)

	msgs, err := adapter.Normalize([]byte(`{"entry":[{"id":"PAGE1","messaging":[{"sender":{"id":"PSID9"},"message":{"text":"hi"}}]}]}`))
	if err != nil || len(msgs) != 1 {
		t.Fatalf("normalize: %v %v", msgs, err)
	}
	in := msgs[0]
	out := channel.Outbound{
		Channel:   channel.Facebook,
		PageID:    in.PageID,
		Recipient: channel.RecipientFromThread(in.ThreadName),
		Text:      "reply",
	}
	if err := adapter.Send(context.Background(), out); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(g.calls) != 1 {
		t.Fatalf("expected 1 graph call, got %d", len(g.calls))
	}
	call := g.calls[0]
	if call.Path != "/v23.0/PAGE1/messages" || call.Token != "tok-1" {
		t.Fatalf("unexpected call: %+v", call)
	}
	recipient := call.Body["recipient"].(map[string]any)["id"]
	if recipient != "PSID9" {
		t.Fatalf("recipient = %v, want PSID9", recipient)
	}
}

func TestSendUploadsImagesBeforeText(t *testing.T) {
	t.Parallel()
	g := &fakeGraph{}
	adapter := newTestAdapter(t, g)
	img := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))

	err := adapter.Send(context.Background(), channel.Outbound{PageID: "PAGE1", Recipient: "PSID9", Text: "see image", Images: []string{img}})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(g.calls) != 3 {
		t.Fatalf("expected upload, image send, text send; got %d calls", len(g.calls))
	}
	if g.calls[0].Path != "/v23.0/me/message_attachments" || string(g.calls[0].File) != "png" {
		t.Fatalf("unexpected upload: %+v", g.calls[0])
	}
	if !strings.Contains(g.calls[0].Form["message"], `"is_reusable":true`) {
		t.Fatalf("missing reusable flag: %q", g.calls[0].Form["message"])
	}
	if g.calls[1].Path != "/v23.0/me/messages" {
		t.Fatalf("image should be sent via me/messages, got %s", g.calls[1].Path)
	}
	payload := g.calls[1].Body["message"].(map[string]any)["attachment"].(map[string]any)["payload"].(map[string]any)
	if payload["attachment_id"] != "att-1" {
		t.Fatalf("unexpected attachment payload: %v", payload)
	}
	if g.calls[2].Path != "/v23.0/PAGE1/messages" {
		t.Fatalf("text should go last via page endpoint, got %s", g.calls[2].Path)
	}
}

func TestSendFallsBackToTextWhenUploadFails(t *testing.T) {
	t.Parallel()
	g := &fakeGraph{failImage: true}
	adapter := newTestAdapter(t, g)
	img := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))

	if err := adapter.Send(context.Background(), channel.Outbound{PageID: "PAGE1", Recipient: "PSID9", Text: "text", Images: []string{img}}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	last := g.calls[len(g.calls)-1]
	if last.Path != "/v23.0/PAGE1/messages" {
		t.Fatalf("expected text send after failed upload, got %s", last.Path)
	}
}

func TestSendUnknownPage(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, &fakeGraph{})
	err := adapter.Send(context.Background(), channel.Outbound{PageID: "OTHER", Recipient: "1", Text: "x"})
	if !errors.Is(err, ErrNoPageToken) {
		t.Fatalf("expected ErrNoPageToken, got %v", err)
	}
}

func TestSendChunksLongText(t *testing.T) {
	t.Parallel()
	g := &fakeGraph{}
	adapter := newTestAdapter(t, g)
	long := strings.Repeat("a", facebookMaxMessageLength+10)
	if err := adapter.Send(context.Background(), channel.Outbound{PageID: "PAGE1", Recipient: "1", Text: long}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(g.calls) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(g.calls))
	}
}

func TestChainTokens(t *testing.T) {
	t.Parallel()
	chain := ChainTokens{StaticTokens{"A": "a"}, nil, StaticTokens{"B": "b"}}
	if tok, err := chain.PageToken(context.Background(), "B"); err != nil || tok != "b" {
		t.Fatalf("PageToken(B) = %q, %v", tok, err)
	}
	if _, err := chain.PageToken(context.Background(), "C"); !errors.Is(err, ErrNoPageToken) {
		t.Fatalf("expected ErrNoPageToken, got %v", err)
	}
}
