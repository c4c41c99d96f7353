// Package rest is the client for the conversation REST API. The backend is
// the source of truth; this client only fetches and forwards. Malformed
// responses are coerced to empty collections so one bad payload cannot take
// down the whole subsystem.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storechat/internal/models"
)

type Authorizer interface {
	Authorize(req *http.Request)
}

type Client struct {
	baseURL string
	creds   Authorizer
	http    *http.Client
}

func NewClient(baseURL string, creds Authorizer, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
	}
}

// StatusError is returned for non-2xx responses. 5xx responses are
// retryable; the surface shows a retry affordance instead of failing.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func (e *StatusError) Retryable() bool {
	return e.Code >= http.StatusInternalServerError
}

// ListConversations fetches the viewer's full conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	body, err := c.get(ctx, "/conversation/user")
	if err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0)
	for _, wc := range decodeList[wireConversation](body) {
		conversations = append(conversations, wc.toModel())
	}
	return conversations, nil
}

// GetMessages fetches the ordered history of one conversation.
func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	body, err := c.get(ctx, "/conversation/"+conversationID+"/messages")
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0)
	for _, wm := range decodeList[wireMessage](body) {
		messages = append(messages, wm.toModel())
	}
	return messages, nil
}

// SendMessage is the fallback send path used when the realtime channel is
// down. The response is authoritative for reconciling the optimistic entry;
// the client does not wait for a new-message echo.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (models.Message, error) {
	payload := struct {
		ConversationID string `json:"conversationId"`
		Content        string `json:"content"`
	}{conversationID, text}

	body, err := c.post(ctx, http.MethodPost, "/conversation/send", payload)
	if err != nil {
		return models.Message{}, err
	}

	var wm wireMessage
	if err := json.Unmarshal(unwrap(body), &wm); err != nil {
		return models.Message{}, fmt.Errorf("failed to decode sent message: %w", err)
	}
	msg := wm.toModel()
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	if msg.Content == "" {
		msg.Content = text
	}
	return msg, nil
}

// CreateConversation opens a thread with a shop. Called by the shop-detail
// collaborator when the user initiates contact.
func (c *Client) CreateConversation(ctx context.Context, shopID string) (models.Conversation, error) {
	payload := struct {
		ShopID string `json:"shop_id"`
	}{shopID}

	body, err := c.post(ctx, http.MethodPost, "/conversation/create", payload)
	if err != nil {
		return models.Conversation{}, err
	}

	var wc wireConversation
	if err := json.Unmarshal(unwrap(body), &wc); err != nil {
		return models.Conversation{}, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return wc.toModel(), nil
}

// MarkRead acknowledges the viewer has read a conversation. Idempotent on
// the backend.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	_, err := c.post(ctx, http.MethodPut, "/conversation/"+conversationID+"/read", nil)
	return err
}

// GetUserStatus fetches the presence baseline for a participant, trying the
// direct route first and the participant-scoped route when the backend does
// not know the id directly.
func (c *Client) GetUserStatus(ctx context.Context, participantID string) (models.Status, error) {
	body, err := c.get(ctx, "/user-status/"+participantID)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		body, err = c.get(ctx, "/user-status/participant/"+participantID)
	}
	if err != nil {
		return models.StatusOffline, err
	}

	var ws wireStatus
	if err := json.Unmarshal(unwrap(body), &ws); err != nil {
		return models.StatusOffline, nil
	}
	return models.ParseStatus(ws.Status), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.creds != nil {
		c.creds.Authorize(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
