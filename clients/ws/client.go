// Package ws provides a WebSocket client for the umbra gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/umbra/internal/gateway/ws"
)

// Client is a WebSocket client for the umbra gateway.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// URL builds the WebSocket endpoint for a gateway at host:port.
func URL(addr string) string {
	return "ws://" + addr + "/api/ws"
}

// Send writes a command request and returns its frame ID.
func (c *Client) Send(method string, params any) (string, error) {
	seq := atomic.AddUint64(&c.reqSeq, 1)
	id := fmt.Sprintf("req-%d", seq)

	frame, err := wsprotocol.NewRequestFrame(id, method, params)
	if err != nil {
		return "", err
	}
	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return "", err
	}
	return id, c.conn.Write(c.ctx, websocket.MessageText, data)
}

// Execute sends a command and waits for its response, skipping event
// frames. The response payload is decoded into out when out is non-nil.
func (c *Client) Execute(ctx context.Context, method string, params, out any) error {
	id, err := c.Send(method, params)
	if err != nil {
		return err
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("ws read: %w", err)
		}
		frame, err := wsprotocol.UnmarshalFrame(data)
		if err != nil {
			return fmt.Errorf("ws decode: %w", err)
		}
		if frame.Type != wsprotocol.FrameTypeResponse || frame.ID != id {
			continue
		}

		if out != nil && len(frame.Payload) > 0 {
			if err := json.Unmarshal(frame.Payload, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		if frame.OK == nil || !*frame.OK {
			if frame.Error == "" {
				return errors.New(method + " failed")
			}
			return errors.New(frame.Error)
		}
		return nil
	}
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
