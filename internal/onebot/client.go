package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"groupbot/internal/logger"
)

// Reconnect backoff bounds.
const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// ErrNotConnected is returned by send operations while the websocket is down.
var ErrNotConnected = errors.New("onebot: not connected")

// Client maintains a forward websocket connection to a OneBot v11
// implementation. It reconnects with exponential backoff and hands decoded
// group messages to the registered handler.
type Client struct {
	url   string
	token string

	onMessage func(msg *GroupMessage)
	onConnect func(reconnect bool)

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for the given websocket endpoint. token may be
// empty when the endpoint does not require authentication.
func NewClient(url, token string) *Client {
	return &Client{url: url, token: token}
}

// OnGroupMessage registers the handler invoked for every inbound group
// message. It must be set before Run.
func (c *Client) OnGroupMessage(fn func(msg *GroupMessage)) {
	c.onMessage = fn
}

// OnConnect registers a hook invoked after every successful connection.
// reconnect is false only for the first connection of this process.
func (c *Client) OnConnect(fn func(reconnect bool)) {
	c.onConnect = fn
}

// Run connects and serves inbound events until ctx is canceled. Connection
// loss is not an error; the client backs off and dials again.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	connected := false

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Connection failed", "url", c.url, "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		logger.Info("Connected", "url", c.url)
		c.setConn(conn)
		if c.onConnect != nil {
			c.onConnect(connected)
		}
		connected = true
		backoff = initialBackoff

		err = c.readLoop(ctx, conn)
		c.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Connection lost", "url", c.url, "error", err)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	return conn, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, ok, err := ParseGroupMessage(raw)
		if err != nil {
			logger.Warn("Malformed event", "error", err)
			continue
		}
		if !ok {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// apiCall is an outbound OneBot action frame.
type apiCall struct {
	Action string `json:"action"`
	Params any    `json:"params"`
}

// SendGroupMessage posts text to a group chat over the active connection.
func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, text string) error {
	call := apiCall{
		Action: "send_group_msg",
		Params: map[string]any{
			"group_id": groupID,
			"message":  text,
		},
	}
	data, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("encode send_group_msg: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send to group %d: %w", groupID, err)
	}
	return nil
}
