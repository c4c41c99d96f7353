package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Transport is the raw bidirectional link under the channel. It is injected
// so the reconnection and fallback logic can be tested with a fake.
type Transport interface {
	Connect(ctx context.Context) error
	Send(env Envelope) error
	Receive() (Envelope, error)
	Close() error
}

type Authorizer interface {
	Authorize(req *http.Request)
}

// WebsocketTransport dials the backend's websocket endpoint with the bearer
// credential attached.
type WebsocketTransport struct {
	url   string
	creds Authorizer

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebsocketTransport(url string, creds Authorizer) *WebsocketTransport {
	return &WebsocketTransport{
		url:   url,
		creds: creds,
	}
}

func (t *WebsocketTransport) Connect(ctx context.Context) error {
	header := http.Header{}
	if t.creds != nil {
		req, err := http.NewRequest(http.MethodGet, t.url, nil)
		if err != nil {
			return err
		}
		t.creds.Authorize(req)
		header = req.Header
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *WebsocketTransport) Send(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errors.New("transport not connected")
	}
	return t.conn.WriteJSON(env)
}

func (t *WebsocketTransport) Receive() (Envelope, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return Envelope{}, errors.New("transport not connected")
	}

	var env Envelope
	err := conn.ReadJSON(&env)
	return env, err
}

func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
