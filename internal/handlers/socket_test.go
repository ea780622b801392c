package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/auth"
	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/web"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/logger"
	"github.com/omnidesk/omnidesk/internal/realtime"
	"github.com/omnidesk/omnidesk/internal/session"
)

type fakeRunner struct {
	mu       sync.Mutex
	sessions map[int64]session.Session
	inbound  chan channel.Inbound
	staff    chan conversation.StaffInput
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		sessions: map[int64]session.Session{},
		inbound:  make(chan channel.Inbound, 4),
		staff:    make(chan conversation.StaffInput, 4),
	}
}

func (r *fakeRunner) Session(_ context.Context, id int64) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (r *fakeRunner) HandleInbound(_ context.Context, in channel.Inbound) error {
	r.inbound <- in
	return nil
}

func (r *fakeRunner) StaffTurn(_ context.Context, in conversation.StaffInput, _ *realtime.Conn) (conversation.Frame, error) {
	r.staff <- in
	return conversation.Frame{SessionID: in.SessionID}, nil
}

func newSocketServer(t *testing.T, runner *fakeRunner, secret string) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	log := logger.Discard()
	hub := realtime.NewHub(log)
	e := echo.New()
	e.Use(auth.JWTMiddleware(secret, func(c echo.Context) bool {
		return c.Path() == "/chat/ws/customer"
	}))
	NewSocketHandler(log, runner, hub, web.NewWebAdapter(log)).Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, hub
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestCustomerSocketForwardsFrames(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	runner.sessions[7] = session.Session{ID: 7, Channel: channel.Web}
	srv, hub := newSocketServer(t, runner, "secret")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws/customer?sessionId=7"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	frames := []string{
		`{"chat_session_id":7,"sender_type":"customer","content":"xin chào"}`,
		`{"chat_session_id":8,"sender_type":"customer","content":"spoofed"}`,
		`{"chat_session_id":7,"sender_type":"customer","content":"còn hàng không","image":"https://img/1.png"}`,
	}
	for _, f := range frames {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	for _, want := range []string{"xin chào", "còn hàng không"} {
		select {
		case in := <-runner.inbound:
			if in.SessionID != 7 || in.Text != want {
				t.Fatalf("unexpected inbound %+v", in)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	if hub.CustomerCount(7) != 1 {
		t.Fatalf("expected one registered customer socket")
	}
}

func TestCustomerSocketUnknownSession(t *testing.T) {
	t.Parallel()

	srv, _ := newSocketServer(t, newFakeRunner(), "secret")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws/customer?sessionId=99"), nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestAdminSocketRequiresToken(t *testing.T) {
	t.Parallel()

	srv, _ := newSocketServer(t, newFakeRunner(), "secret")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws/admin"), nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestAdminSocketRunsStaffTurns(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	srv, hub := newSocketServer(t, runner, "secret")
	token, _, err := auth.GenerateToken(auth.Staff{ID: "u-1", Name: "Alice"}, "secret", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws/admin?token="+token), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"chat_session_id":42,"content":"Em chào chị"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	select {
	case in := <-runner.staff:
		if in.SessionID != 42 || in.Staff != "Alice" || in.Content != "Em chào chị" {
			t.Fatalf("unexpected staff input %+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for staff turn")
	}
	if hub.StaffCount() != 1 {
		t.Fatalf("expected one staff socket, got %d", hub.StaffCount())
	}
}
