package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghonijee/money-tracker-ai-agent/agents"
)

type stubAgent struct {
	mu       sync.Mutex
	asked    []string
	inbound  []agents.InboundMessage
	reply    string
	err      error
	received chan agents.InboundMessage
}

func (s *stubAgent) Ask(ctx context.Context, rawUserID, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, rawUserID+":"+text)
	return s.reply, s.err
}

func (s *stubAgent) ProcessMessage(ctx context.Context, msg agents.InboundMessage) (string, error) {
	s.mu.Lock()
	s.inbound = append(s.inbound, msg)
	s.mu.Unlock()
	if s.received != nil {
		s.received <- msg
	}
	return s.reply, s.err
}

type stubMessenger struct {
	mu         sync.Mutex
	sent       []string
	downloaded []string
	path       string
}

func (m *stubMessenger) SendText(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+":"+body)
	return nil
}

func (m *stubMessenger) DownloadMedia(ctx context.Context, mediaID, dir string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloaded = append(m.downloaded, mediaID)
	return m.path, nil
}

const webhookBody = `{"entry":[{"changes":[{"value":{
	"contacts":[{"profile":{"name":"Budi"},"wa_id":"6281234567890"}],
	"messages":[{"from":"6281234567890","id":"wamid.1","type":"text","text":{"body":"lunch 50k"}}]}}]}]}`

func newTestServer(agent *stubAgent, messenger Messenger) *APIServer {
	return &APIServer{
		Agent:       agent,
		Messenger:   messenger,
		VerifyToken: "secret-token",
		MediaDir:    "/tmp/media",
		Logger:      zerolog.Nop(),
	}
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleMessage(t *testing.T) {
	agent := &stubAgent{reply: "Recorded expense ID 1"}
	api := newTestServer(agent, nil)

	rec := postJSON(t, api.Handler(), "/api/v1/message", MessageRequest{PhoneNumber: "6281234567890", Message: "lunch 50k"})
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Recorded expense ID 1", resp.Message)
	assert.Equal(t, []string{"6281234567890:lunch 50k"}, agent.asked)
}

func TestHandleMessageValidation(t *testing.T) {
	agent := &stubAgent{reply: "ok"}
	h := newTestServer(agent, nil).Handler()

	cases := map[string]MessageRequest{
		"short phone":   {PhoneNumber: "12345678", Message: "hi"},
		"long phone":    {PhoneNumber: "1234567890123456", Message: "hi"},
		"letters":       {PhoneNumber: "62812abc789", Message: "hi"},
		"empty message": {PhoneNumber: "6281234567890", Message: ""},
		"long message":  {PhoneNumber: "6281234567890", Message: strings.Repeat("a", MaxMessageLength+1)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/v1/message", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, agent.asked)

	rec := postJSON(t, h, "/api/v1/message", MessageRequest{PhoneNumber: "6281234567890", Message: strings.Repeat("a", MaxMessageLength)})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMessageAgentError(t *testing.T) {
	agent := &stubAgent{err: errors.New("boom")}
	rec := postJSON(t, newTestServer(agent, nil).Handler(), "/api/v1/message", MessageRequest{PhoneNumber: "6281234567890", Message: "hi"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestWebhookVerification(t *testing.T) {
	h := newTestServer(&stubAgent{}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	req = httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookAcknowledgesAndProcessesInBackground(t *testing.T) {
	agent := &stubAgent{reply: "Noted", received: make(chan agents.InboundMessage, 1)}
	messenger := &stubMessenger{}
	api := newTestServer(agent, messenger)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(webhookBody))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	select {
	case msg := <-agent.received:
		assert.Equal(t, "6281234567890", msg.SenderID)
		assert.Equal(t, "Budi", msg.SenderName)
		assert.Equal(t, agents.MessageText, msg.Type)
		assert.Equal(t, "whatsapp", msg.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not processed")
	}
	api.Close()
	assert.Equal(t, []string{"6281234567890:Noted"}, messenger.sent)
}

func TestWebhookTestIsSynchronous(t *testing.T) {
	agent := &stubAgent{reply: "Here is your summary"}
	messenger := &stubMessenger{}
	api := newTestServer(agent, messenger)

	req := httptest.NewRequest(http.MethodPost, "/webhook/test", strings.NewReader(webhookBody))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var replies []WebhookReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replies))
	require.Len(t, replies, 1)
	assert.Equal(t, "Here is your summary", replies[0].Message)
	assert.Equal(t, []string{"6281234567890:Here is your summary"}, messenger.sent)
}

func TestWebhookDownloadsImages(t *testing.T) {
	agent := &stubAgent{reply: "Receipt saved"}
	messenger := &stubMessenger{path: "/tmp/media/media-9.jpg"}
	api := newTestServer(agent, messenger)

	body := `{"entry":[{"changes":[{"value":{"messages":[
		{"from":"6281234567890","id":"w","type":"image","image":{"id":"media-9","caption":"dinner"}}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/test", strings.NewReader(body))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"media-9"}, messenger.downloaded)
	require.Len(t, agent.inbound, 1)
	assert.Equal(t, agents.MessageImage, agent.inbound[0].Type)
	assert.Equal(t, "/tmp/media/media-9.jpg", agent.inbound[0].ImagePath)
	assert.Equal(t, "dinner", agent.inbound[0].Content)
}

func TestWebhookRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"entry": [`))
	rec := httptest.NewRecorder()
	newTestServer(&stubAgent{}, nil).Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	newTestServer(&stubAgent{}, nil).Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
