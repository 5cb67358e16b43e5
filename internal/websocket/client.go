package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 32
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one dashboard connection.
type Client struct {
	hub       *Hub
	conn      *ws.Conn
	community string
	send      chan []byte
}

// NewClient ties conn to hub. A non-empty community limits the client to
// that community's updates.
func NewClient(hub *Hub, conn *ws.Conn, community string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		community: community,
		send:      make(chan []byte, sendBufferSize),
	}
}

func (c *Client) follows(community string) bool {
	return c.community == "" || community == "" || c.community == community
}

// Run serves the connection until it closes or ctx is done.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)

	// Dashboards are read-only; anything they send is ignored.
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, ws.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
