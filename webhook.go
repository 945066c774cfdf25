package litbuddy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ============================================================================
// Webhook Types
// ============================================================================

// WebhookPayload represents a LitBuddy chat webhook payload (POST to a bot
// endpoint).
type WebhookPayload struct {
	Source    string         `json:"source"`
	Event     string         `json:"event"`
	Timestamp int64          `json:"timestamp"`
	Message   WebhookMessage `json:"message"`
	Sender    WebhookSender  `json:"sender"`
	Chat      WebhookChat    `json:"chat"`
}

// WebhookMessage represents a message in a webhook payload.
type WebhookMessage struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	Text      string `json:"text"`
	SenderID  string `json:"senderId"`
	CreatedAt string `json:"createdAt"`
}

// WebhookSender represents sender information in a webhook payload.
type WebhookSender struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// WebhookChat represents chat information in a webhook payload.
type WebhookChat struct {
	ID   string  `json:"id"`
	Type string  `json:"type"` // "direct" or "group"
	Name *string `json:"name"`
}

// WebhookReply is an optional reply from a webhook handler.
type WebhookReply struct {
	Text string `json:"text"`
}

// WebhookHandlerFunc is the callback signature for handling webhook payloads.
type WebhookHandlerFunc func(payload *WebhookPayload) (*WebhookReply, error)

// ============================================================================
// Standalone Functions
// ============================================================================

// VerifyWebhookSignature checks the X-LitBuddy-Signature value against the
// shared secret. The signature is hex-encoded HMAC-SHA256 of the raw body,
// with or without the "sha256=" prefix the server sends.
func VerifyWebhookSignature(body, signature, secret string) bool {
	if body == "" || signature == "" || secret == "" {
		return false
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hmac.Equal(got, mac.Sum(nil))
}

// ParseWebhookPayload parses and validates a raw webhook body.
func ParseWebhookPayload(body string) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("webhook body is not valid JSON: %w", err)
	}

	if payload.Source != "litbuddy_chat" {
		return nil, fmt.Errorf("unknown webhook source %q", payload.Source)
	}
	if payload.Event == "" {
		return nil, fmt.Errorf("webhook payload missing event")
	}
	if payload.Message.ID == "" || payload.Sender.ID == "" || payload.Chat.ID == "" {
		return nil, fmt.Errorf("webhook payload missing message, sender, or chat id")
	}

	return &payload, nil
}

// ============================================================================
// Webhook
// ============================================================================

// Webhook handles LitBuddy webhook verification, parsing, and dispatch.
type Webhook struct {
	secret    string
	onMessage WebhookHandlerFunc
}

// NewWebhook creates a new webhook handler.
func NewWebhook(secret string, onMessage WebhookHandlerFunc) (*Webhook, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	return &Webhook{
		secret:    secret,
		onMessage: onMessage,
	}, nil
}

// Verify verifies an HMAC-SHA256 signature.
func (w *Webhook) Verify(body, signature string) bool {
	return VerifyWebhookSignature(body, signature, w.secret)
}

// Parse parses a raw body into a typed WebhookPayload.
func (w *Webhook) Parse(body string) (*WebhookPayload, error) {
	return ParseWebhookPayload(body)
}

// Handle verifies, parses, and dispatches one webhook delivery. The response
// uses the same Result envelope the rest of the API speaks; a reply from the
// handler rides in the Data field.
func (w *Webhook) Handle(body, signature string) (int, Result) {
	if !w.Verify(body, signature) {
		return http.StatusUnauthorized, Result{
			Error: &APIError{Code: "BAD_SIGNATURE", Message: "signature verification failed"},
		}
	}

	payload, err := w.Parse(body)
	if err != nil {
		return http.StatusBadRequest, Result{
			Error: &APIError{Code: "BAD_PAYLOAD", Message: err.Error()},
		}
	}

	reply, err := w.onMessage(payload)
	if err != nil {
		return http.StatusInternalServerError, Result{
			Error: &APIError{Code: "HANDLER_FAILED", Message: err.Error()},
		}
	}

	res := Result{OK: true}
	if reply != nil {
		res.Data, _ = json.Marshal(reply)
	}
	return http.StatusOK, res
}

// HTTPHandler returns an http.Handler that processes webhook requests.
//
// Example:
//
//	wh, _ := litbuddy.NewWebhook("secret", handler)
//	http.Handle("/webhook", wh.HTTPHandler())
func (w *Webhook) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.Header().Set("Allow", http.MethodPost)
			writeResult(rw, http.StatusMethodNotAllowed, Result{
				Error: &APIError{Code: "METHOD_NOT_ALLOWED", Message: "webhook deliveries are POST only"},
			})
			return
		}

		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			writeResult(rw, http.StatusBadRequest, Result{
				Error: &APIError{Code: "BAD_REQUEST", Message: "failed to read request body"},
			})
			return
		}
		defer r.Body.Close()

		status, res := w.Handle(string(bodyBytes), r.Header.Get("X-LitBuddy-Signature"))
		writeResult(rw, status, res)
	})
}

func writeResult(rw http.ResponseWriter, status int, res Result) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(res)
}

// HTTPHandlerFunc returns an http.HandlerFunc for convenience.
func (w *Webhook) HTTPHandlerFunc() http.HandlerFunc {
	return w.HTTPHandler().ServeHTTP
}
