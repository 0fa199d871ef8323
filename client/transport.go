package client

import (
	"context"

	"github.com/gorilla/websocket"
)

// Transport abstracts the push connection so tests can script frames.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

type Conn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// WebsocketTransport dials the gateway's raw websocket endpoint
// (the sockjs handler exposes it under <prefix>/websocket).
type WebsocketTransport struct {
	URL string
}

func (t *WebsocketTransport) Connect(ctx context.Context) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) Send(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}
