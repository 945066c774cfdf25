// Package litbuddy provides the official Go SDK for the LitBuddy chat API.
//
// Covers the REST chat API plus the realtime delivery layer with sub-module
// access pattern.
//
// Example:
//
//	client := litbuddy.NewClient(token, litbuddy.WithUserID("user-42"))
//
//	// REST API
//	chats, _ := client.Chats().List(ctx)
//	client.Chats().SendMessage(ctx, "chat-1", "Have you read Dune?")
//
//	// Realtime layer
//	rt := client.Realtime(nil)
//	rt.Connect(ctx)
//	conv, _ := client.OpenConversation(ctx, rt, "chat-1")
package litbuddy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
	Staging    Environment = "staging"
)

var environments = map[Environment]string{
	Production: "https://api.litbuddy.app",
	Staging:    "https://staging.api.litbuddy.app",
}

const (
	DefaultBaseURL = "https://api.litbuddy.app"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token      string
	userID     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	chats         *ChatsClient
	groups        *GroupsClient
	notifications *NotificationsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.baseURL = u
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithUserID sets the current user's id. Required for the realtime layer,
// which subscribes to per-user queues.
func WithUserID(id string) ClientOption {
	return func(c *Client) { c.userID = id }
}

// WithLogger sets the diagnostic logger. Defaults to a disabled logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new LitBuddy client.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.chats = &ChatsClient{client: c}
	c.groups = &GroupsClient{client: c}
	c.notifications = &NotificationsClient{client: c}
	return c
}

// SetToken sets or updates the auth token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// UserID returns the configured current-user id.
func (c *Client) UserID() string {
	return c.userID
}

// Chats returns the 1:1 chat sub-client.
func (c *Client) Chats() *ChatsClient {
	return c.chats
}

// Groups returns the group-chat sub-client.
func (c *Client) Groups() *GroupsClient {
	return c.groups
}

// Notifications returns the notifications sub-client.
func (c *Client) Notifications() *NotificationsClient {
	return c.notifications
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Result](data)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func resultErr(r *Result, fallback string) error {
	if r.OK {
		return nil
	}
	if r.Error != nil {
		return r.Error
	}
	return &APIError{Code: "UNKNOWN", Message: fallback}
}

// ============================================================================
// Chats Sub-Client
// ============================================================================

// ChatsClient handles 1:1 chats.
type ChatsClient struct{ client *Client }

// Create opens (or returns the existing) 1:1 chat with another user.
func (ch *ChatsClient) Create(ctx context.Context, userID string) (*Chat, error) {
	res, err := ch.client.do(ctx, "POST", "/chat/"+userID, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to create chat"); err != nil {
		return nil, err
	}
	var chat Chat
	if err := res.Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode chat: %w", err)
	}
	return &chat, nil
}

// List returns the current user's chats.
func (ch *ChatsClient) List(ctx context.Context) ([]Chat, error) {
	res, err := ch.client.do(ctx, "GET", "/chat", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to list chats"); err != nil {
		return nil, err
	}
	return DecodeChats(res.Data)
}

// History returns the message history and pause status of a chat.
func (ch *ChatsClient) History(ctx context.Context, chatID string) (*ChatHistory, error) {
	res, err := ch.client.do(ctx, "GET", "/chat/"+chatID, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to load chat history"); err != nil {
		return nil, err
	}
	hist, err := DecodeMessages(res.Data)
	if err != nil {
		return nil, err
	}
	if hist.ChatID == "" {
		hist.ChatID = chatID
	}
	return hist, nil
}

// SendMessage sends a message to a chat and returns the durable copy.
func (ch *ChatsClient) SendMessage(ctx context.Context, chatID, text string) (*Message, error) {
	res, err := ch.client.do(ctx, "POST", "/chat/message/"+chatID, map[string]string{"text": text}, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to send message"); err != nil {
		return nil, err
	}
	return DecodeMessage(res.Data)
}

// Pause pauses a conversation.
func (ch *ChatsClient) Pause(ctx context.Context, chatID string) (*ConversationStatus, error) {
	return ch.patchStatus(ctx, chatID, "pause")
}

// Resume resumes a paused conversation.
func (ch *ChatsClient) Resume(ctx context.Context, chatID string) (*ConversationStatus, error) {
	return ch.patchStatus(ctx, chatID, "resume")
}

func (ch *ChatsClient) patchStatus(ctx context.Context, chatID, action string) (*ConversationStatus, error) {
	res, err := ch.client.do(ctx, "PATCH", "/chat/"+chatID+"/"+action, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to "+action+" chat"); err != nil {
		return nil, err
	}
	var status ConversationStatus
	if err := res.Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

// ============================================================================
// Groups Sub-Client
// ============================================================================

// GroupsClient handles book-club group chats.
type GroupsClient struct{ client *Client }

// Create creates a group chat for a book club.
func (g *GroupsClient) Create(ctx context.Context, name string, memberIDs []string) (*GroupChat, error) {
	payload := map[string]interface{}{"name": name}
	if len(memberIDs) > 0 {
		payload["members"] = memberIDs
	}
	res, err := g.client.do(ctx, "POST", "/group-chat", payload, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to create group chat"); err != nil {
		return nil, err
	}
	var gc GroupChat
	if err := res.Decode(&gc); err != nil {
		return nil, fmt.Errorf("failed to decode group chat: %w", err)
	}
	return &gc, nil
}

// List returns the current user's group chats.
func (g *GroupsClient) List(ctx context.Context) ([]GroupChat, error) {
	res, err := g.client.do(ctx, "GET", "/group-chat", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to list group chats"); err != nil {
		return nil, err
	}
	return DecodeGroupChats(res.Data)
}

// History returns the message history of a group chat.
func (g *GroupsClient) History(ctx context.Context, chatID string) (*ChatHistory, error) {
	res, err := g.client.do(ctx, "GET", "/group-chat/"+chatID, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to load group chat history"); err != nil {
		return nil, err
	}
	hist, err := DecodeMessages(res.Data)
	if err != nil {
		return nil, err
	}
	if hist.ChatID == "" {
		hist.ChatID = chatID
	}
	return hist, nil
}

// SendMessage sends a message to a group chat and returns the durable copy.
func (g *GroupsClient) SendMessage(ctx context.Context, chatID, text string) (*Message, error) {
	res, err := g.client.do(ctx, "POST", "/group-chat/message/"+chatID, map[string]string{"text": text}, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to send group message"); err != nil {
		return nil, err
	}
	return DecodeMessage(res.Data)
}

// ============================================================================
// Notifications Sub-Client
// ============================================================================

// NotificationsClient handles notifications.
type NotificationsClient struct{ client *Client }

// List returns the current user's notifications, newest first.
func (n *NotificationsClient) List(ctx context.Context) ([]Notification, error) {
	res, err := n.client.do(ctx, "GET", "/notifications", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := resultErr(res, "failed to list notifications"); err != nil {
		return nil, err
	}
	var wrapped struct {
		Notifications []Notification `json:"notifications"`
	}
	if err := json.Unmarshal(res.Data, &wrapped); err == nil && wrapped.Notifications != nil {
		return wrapped.Notifications, nil
	}
	var list []Notification
	if err := json.Unmarshal(res.Data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return list, nil
}

// MarkRead marks a notification as read.
func (n *NotificationsClient) MarkRead(ctx context.Context, notificationID string) error {
	res, err := n.client.do(ctx, "PATCH", "/notifications/"+notificationID+"/read", nil, nil)
	if err != nil {
		return err
	}
	return resultErr(res, "failed to mark notification read")
}

// ============================================================================
// Realtime factory
// ============================================================================

// wsURL derives the websocket endpoint from the REST base URL.
func (c *Client) wsURL() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	if c.token != "" {
		return base + "/ws?token=" + url.QueryEscape(c.token)
	}
	return base + "/ws"
}

// Realtime creates a realtime client bound to this API client. Call
// Connect to establish the connection.
func (c *Client) Realtime(config *RealtimeConfig) *Realtime {
	var cfg RealtimeConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	return newRealtime(c, &cfg)
}
