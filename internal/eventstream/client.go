package eventstream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// HandleUpgrade upgrades an HTTP request to a WebSocket connection and
// registers the resulting Client with hub, then blocks running its read
// and write pumps until the connection closes or ctx is canceled.
func HandleUpgrade(ctx context.Context, hub *Hub, w http.ResponseWriter, r *http.Request, clientID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{id: clientID, conn: conn, send: make(chan Event, 64), hub: hub}
	hub.register <- client

	go client.writePump()
	client.readPump(ctx)
	return nil
}

// writePump relays broadcast events to the underlying connection and
// keeps it alive with periodic pings; it returns (and closes the
// connection) the moment the send channel is closed by the hub or a
// write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages (this stream is observer-only) but
// keeps the read deadline alive via pong handling, unregistering the
// client from hub once the connection drops.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
