// internal/wechat/server.go
package wechat

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/wxbridge/internal/types"
)

// successBody acknowledges deliveries that produce no formatted reply.
const successBody = "success"

// Replier produces the answer text for an inbound text message.
type Replier interface {
	Reply(ctx context.Context, sessionID, msgID, content string) string
}

// Reconciler detects redelivered events and waits for in-flight answers.
type Reconciler interface {
	Observe(ctx context.Context, ev *types.Event) (bool, error)
	AwaitAnswer(ctx context.Context, msgID string) (string, bool)
}

// Server is the HTTP handler for the webhook endpoint.
type Server struct {
	token      string
	replier    Replier
	reconciler Reconciler
	mux        *http.ServeMux
	now        func() time.Time
}

// NewServer creates the webhook Server with the given shared secret
// token, reply flow, and duplicate reconciler.
func NewServer(token string, replier Replier, reconciler Reconciler) *Server {
	s := &Server{
		token:      token,
		replier:    replier,
		reconciler: reconciler,
		mux:        http.NewServeMux(),
		now:        time.Now,
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /webhook", s.handleChallenge)
	s.mux.HandleFunc("POST /webhook", s.handleEvent)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleChallenge answers the platform's verification call: echo the
// challenge token when the signature matches, reject otherwise.
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signature := q.Get("signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")

	if !ValidSignature(s.token, timestamp, nonce, signature) {
		slog.Warn("challenge signature mismatch", "timestamp", timestamp, "nonce", nonce)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Write([]byte(q.Get("echostr")))
}

// handleEvent processes one delivery: decode, reconcile duplicates,
// dispatch by message type, and wrap the reply in the XML envelope.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = string(types.NewRequestID())
	}
	logger := slog.With("request_id", requestID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("read body failed", "error", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	msg, err := ParseMessage(body)
	if err != nil {
		logger.Error("parse xml failed", "error", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	logger.Debug("event received", "msg_type", msg.MsgType, "msgid", msg.MsgID, "from", msg.FromUserName)

	ctx := r.Context()

	// Some delivery kinds carry no message id; those cannot be
	// deduplicated and go straight to type dispatch.
	if msg.MsgID != "" {
		dup, err := s.reconciler.Observe(ctx, &types.Event{EventID: msg.MsgID, Payload: string(body)})
		if err != nil {
			logger.Error("event log failed", "msgid", msg.MsgID, "error", err)
		} else if dup {
			logger.Debug("duplicate delivery", "msgid", msg.MsgID)
			if answer, ok := s.reconciler.AwaitAnswer(ctx, msg.MsgID); ok {
				s.writeReply(w, logger, msg, answer)
				return
			}
			// No answer converged in time; fall through to default
			// handling as if the delivery were new.
		}
	}

	switch {
	case msg.MsgType == MsgTypeText:
		content := s.replier.Reply(ctx, msg.FromUserName, msg.MsgID, msg.Content)
		s.writeReply(w, logger, msg, content)
	default:
		if reply, known := unsupportedReplies[msg.MsgType]; known {
			s.writeReply(w, logger, msg, reply)
			return
		}
		w.Write([]byte(successBody))
	}
}

func (s *Server) writeReply(w http.ResponseWriter, logger *slog.Logger, msg *InboundMessage, content string) {
	out, err := RenderTextReply(msg, content, s.now())
	if err != nil {
		logger.Error("render reply failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Write(out)
}
