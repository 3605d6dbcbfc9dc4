package wechat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/wxbridge/internal/types"
)

type mockReplier struct {
	lastSessionID string
	lastMsgID     string
	lastContent   string
	response      string
	calls         int
}

func (m *mockReplier) Reply(_ context.Context, sessionID, msgID, content string) string {
	m.calls++
	m.lastSessionID = sessionID
	m.lastMsgID = msgID
	m.lastContent = content
	return m.response
}

type mockReconciler struct {
	duplicate bool
	answer    string
	found     bool
	observed  []string
}

func (m *mockReconciler) Observe(_ context.Context, ev *types.Event) (bool, error) {
	m.observed = append(m.observed, ev.EventID)
	return m.duplicate, nil
}

func (m *mockReconciler) AwaitAnswer(_ context.Context, _ string) (string, bool) {
	return m.answer, m.found
}

func envelope(msgType, content, msgID string) string {
	return fmt.Sprintf(`<xml>
  <ToUserName><![CDATA[bot]]></ToUserName>
  <FromUserName><![CDATA[user42]]></FromUserName>
  <CreateTime>1700000000</CreateTime>
  <MsgType><![CDATA[%s]]></MsgType>
  <Content><![CDATA[%s]]></Content>
  <MsgId>%s</MsgId>
</xml>`, msgType, content, msgID)
}

func postEvent(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestChallengeValidSignature(t *testing.T) {
	srv := NewServer("secret", &mockReplier{}, &mockReconciler{})

	sig := Sign("secret", "1700000000", "n1")
	url := fmt.Sprintf("/webhook?signature=%s&timestamp=1700000000&nonce=n1&echostr=challenge-token", sig)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "challenge-token" {
		t.Errorf("expected echoed challenge, got %q", w.Body.String())
	}
}

func TestChallengeInvalidSignature(t *testing.T) {
	srv := NewServer("secret", &mockReplier{}, &mockReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?signature=bogus&timestamp=1700000000&nonce=n1&echostr=x", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Forbidden") {
		t.Errorf("expected Forbidden body, got %q", w.Body.String())
	}
}

func TestEventTextMessage(t *testing.T) {
	replier := &mockReplier{response: "an answer"}
	reconciler := &mockReconciler{}
	srv := NewServer("secret", replier, reconciler)

	w := postEvent(t, srv, envelope("text", "a question", "10001"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<![CDATA[an answer]]>") {
		t.Errorf("expected answer in reply envelope, got %s", body)
	}
	if !strings.Contains(body, "<ToUserName><![CDATA[user42]]></ToUserName>") {
		t.Errorf("expected reply addressed to sender, got %s", body)
	}

	if replier.lastSessionID != "user42" {
		t.Errorf("expected session keyed by sender, got %q", replier.lastSessionID)
	}
	if replier.lastMsgID != "10001" {
		t.Errorf("expected msgid forwarded, got %q", replier.lastMsgID)
	}
	if replier.lastContent != "a question" {
		t.Errorf("expected content forwarded, got %q", replier.lastContent)
	}
	if len(reconciler.observed) != 1 || reconciler.observed[0] != "10001" {
		t.Errorf("expected event recorded with msgid, got %v", reconciler.observed)
	}
}

func TestEventDuplicateWithResolvedAnswer(t *testing.T) {
	replier := &mockReplier{response: "fresh answer"}
	reconciler := &mockReconciler{duplicate: true, answer: "original answer", found: true}
	srv := NewServer("secret", replier, reconciler)

	w := postEvent(t, srv, envelope("text", "a question", "10001"))

	if !strings.Contains(w.Body.String(), "<![CDATA[original answer]]>") {
		t.Errorf("expected the original answer, got %s", w.Body.String())
	}
	if replier.calls != 0 {
		t.Errorf("duplicate with resolved answer must not reprocess, got %d calls", replier.calls)
	}
}

func TestEventDuplicateWithoutAnswerFallsThrough(t *testing.T) {
	replier := &mockReplier{response: "recomputed answer"}
	reconciler := &mockReconciler{duplicate: true, found: false}
	srv := NewServer("secret", replier, reconciler)

	w := postEvent(t, srv, envelope("text", "a question", "10001"))

	if !strings.Contains(w.Body.String(), "<![CDATA[recomputed answer]]>") {
		t.Errorf("expected fallthrough to normal processing, got %s", w.Body.String())
	}
	if replier.calls != 1 {
		t.Errorf("expected exactly one reprocess, got %d", replier.calls)
	}
}

func TestEventUnsupportedTypes(t *testing.T) {
	cases := []struct {
		msgType string
		want    string
	}{
		{"image", "Image messages are not supported yet"},
		{"voice", "Voice messages are not supported yet"},
		{"video", "Video messages are not supported yet"},
		{"music", "Music messages are not supported yet"},
		{"news", "Rich-media messages are not supported yet"},
	}
	for _, tc := range cases {
		t.Run(tc.msgType, func(t *testing.T) {
			replier := &mockReplier{}
			srv := NewServer("secret", replier, &mockReconciler{})

			w := postEvent(t, srv, envelope(tc.msgType, "", "10002"))

			if !strings.Contains(w.Body.String(), "<![CDATA["+tc.want+"]]>") {
				t.Errorf("expected %q, got %s", tc.want, w.Body.String())
			}
			if replier.calls != 0 {
				t.Errorf("unsupported types must not reach the replier")
			}
		})
	}
}

func TestEventUnknownTypeReturnsSuccess(t *testing.T) {
	srv := NewServer("secret", &mockReplier{}, &mockReconciler{})

	w := postEvent(t, srv, envelope("location", "", "10003"))

	if w.Body.String() != "success" {
		t.Errorf("expected literal 'success', got %q", w.Body.String())
	}
}

func TestEventMalformedPayload(t *testing.T) {
	srv := NewServer("secret", &mockReplier{}, &mockReconciler{})

	w := postEvent(t, srv, "not xml at all")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed payload, got %d", w.Code)
	}
}

func TestEventWithoutMsgIDSkipsDedup(t *testing.T) {
	replier := &mockReplier{response: "answer"}
	reconciler := &mockReconciler{}
	srv := NewServer("secret", replier, reconciler)

	body := `<xml>
  <ToUserName><![CDATA[bot]]></ToUserName>
  <FromUserName><![CDATA[user42]]></FromUserName>
  <CreateTime>1700000000</CreateTime>
  <MsgType><![CDATA[text]]></MsgType>
  <Content><![CDATA[hi]]></Content>
</xml>`
	postEvent(t, srv, body)

	if len(reconciler.observed) != 0 {
		t.Errorf("expected no event recorded without msgid, got %v", reconciler.observed)
	}
	if replier.calls != 1 {
		t.Errorf("expected message still processed, got %d calls", replier.calls)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer("secret", &mockReplier{}, &mockReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("expected ok status, got %q", w.Body.String())
	}
}
