package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/agents"
	"github.com/ghonijee/money-tracker-ai-agent/internal/whatsapp"
)

// Validation bounds for the message API.
const (
	MinPhoneLength   = 9
	MaxPhoneLength   = 15
	MaxMessageLength = 225

	defaultMaxInflight = 8
	maxWebhookBody     = 1 << 20
)

// Processor runs one inbound message through the agent.
type Processor interface {
	ProcessMessage(ctx context.Context, msg agents.InboundMessage) (string, error)
	Ask(ctx context.Context, rawUserID, text string) (string, error)
}

// Messenger is the outbound side of the chat channel.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	DownloadMedia(ctx context.Context, mediaID, dir string) (string, error)
}

// APIServer exposes the message API and the WhatsApp webhook.
type APIServer struct {
	Agent          Processor
	Messenger      Messenger
	VerifyToken    string
	MediaDir       string
	MaxInflight    int
	RequestTimeout time.Duration
	Logger         zerolog.Logger

	once     sync.Once
	sem      chan struct{}
	inflight sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// MessageRequest is the body of POST /api/v1/message.
type MessageRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// MessageResponse carries the agent reply.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WebhookReply is one processed message of POST /webhook/test.
type WebhookReply struct {
	From    string `json:"from"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Serve starts listening on the provided address.
func (s *APIServer) Serve(addr string) error {
	return s.ServeContext(context.Background(), addr)
}

// ServeContext allows the caller to control shutdown via context
// cancellation. Background webhook work is cancelled and awaited.
func (s *APIServer) ServeContext(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.Logger.Info().Str("addr", addr).Msg("API listening")
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.Close()
		return ctx.Err()
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close cancels background webhook work and waits for it.
func (s *APIServer) Close() {
	s.init()
	s.cancel()
	s.inflight.Wait()
}

// Handler returns the routed HTTP handler.
func (s *APIServer) Handler() http.Handler {
	s.init()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/message", s.handleMessage)
	mux.HandleFunc("GET /webhook", s.handleVerify)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("POST /webhook/test", s.handleWebhookTest)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *APIServer) init() {
	s.once.Do(func() {
		n := s.MaxInflight
		if n <= 0 {
			n = defaultMaxInflight
		}
		s.sem = make(chan struct{}, n)
		s.baseCtx, s.cancel = context.WithCancel(context.Background())
	})
}

func (s *APIServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateMessage(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	answer, err := s.Agent.Ask(ctx, req.PhoneNumber, req.Message)
	if err != nil {
		s.Logger.Error().Err(err).Msg("message processing failed")
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: answer})
}

func validateMessage(req MessageRequest) string {
	phone := strings.TrimSpace(req.PhoneNumber)
	if n := len(phone); n < MinPhoneLength || n > MaxPhoneLength {
		return "phone_number must be between 9 and 15 characters"
	}
	for _, r := range phone {
		if (r < '0' || r > '9') && r != '+' {
			return "phone_number must contain digits only"
		}
	}
	if n := utf8.RuneCountInString(req.Message); n < 1 || n > MaxMessageLength {
		return "message must be between 1 and 225 characters"
	}
	return ""
}

func (s *APIServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || s.VerifyToken == "" || q.Get("hub.verify_token") != s.VerifyToken {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// handleWebhook acknowledges immediately; messages are processed in the
// background, bounded by MaxInflight.
func (s *APIServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.readWebhook(w, r)
	if !ok {
		return
	}
	for _, msg := range msgs {
		s.inflight.Add(1)
		go func(msg whatsapp.IncomingMessage) {
			defer s.inflight.Done()
			select {
			case s.sem <- struct{}{}:
			case <-s.baseCtx.Done():
				return
			}
			defer func() { <-s.sem }()
			ctx, cancel := s.requestContext(s.baseCtx)
			defer cancel()
			if _, err := s.handleIncoming(ctx, msg); err != nil {
				s.Logger.Error().Err(err).Str("message_id", msg.ID).Msg("webhook message failed")
			}
		}(msg)
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "OK")
}

// handleWebhookTest processes the delivery synchronously and returns the
// replies.
func (s *APIServer) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.readWebhook(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	replies := make([]WebhookReply, 0, len(msgs))
	for _, msg := range msgs {
		answer, err := s.handleIncoming(ctx, msg)
		reply := WebhookReply{From: msg.From, Message: answer}
		if err != nil {
			reply.Error = err.Error()
		}
		replies = append(replies, reply)
	}
	writeJSON(w, http.StatusOK, replies)
}

func (s *APIServer) readWebhook(w http.ResponseWriter, r *http.Request) ([]whatsapp.IncomingMessage, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return nil, false
	}
	msgs, err := whatsapp.ParseWebhook(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return msgs, true
}

func (s *APIServer) handleIncoming(ctx context.Context, in whatsapp.IncomingMessage) (string, error) {
	msg := agents.InboundMessage{
		SenderID:   in.From,
		SenderName: in.Name,
		Type:       agents.ParseMessageType(in.Type),
		Content:    in.Text,
		Source:     "whatsapp",
	}
	if msg.Type == agents.MessageImage && in.MediaID != "" && s.Messenger != nil {
		path, err := s.Messenger.DownloadMedia(ctx, in.MediaID, s.MediaDir)
		if err != nil {
			s.Logger.Warn().Err(err).Str("media_id", in.MediaID).Msg("media download failed")
		} else {
			msg.ImagePath = path
		}
	}
	answer, err := s.Agent.ProcessMessage(ctx, msg)
	if err != nil {
		return "", err
	}
	if s.Messenger != nil && answer != "" {
		if err := s.Messenger.SendText(ctx, in.From, answer); err != nil {
			return answer, err
		}
	}
	return answer, nil
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.RequestTimeout > 0 {
		return context.WithTimeout(parent, s.RequestTimeout)
	}
	return context.WithCancel(parent)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
