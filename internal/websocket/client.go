package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// guarded by hub.mu
	streams map[string]struct{}
	closed  bool

	// lowercased key from the connection URL path; "" marks a public
	// connection, anything else makes it user-scoped with that identity
	userKey string

	// last accepted control frame; readPump only
	lastCtrl time.Time
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// identity is whatever the URL carries; no origin or auth checks here
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers the connection. A path of
// /ws/<key> binds the connection to that user identity; bare /ws is public.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws"), "/")

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.sendBuf),
		streams: make(map[string]struct{}),
		userKey: strings.ToLower(key),
	}

	h.register(client)

	go client.writePump()
	go client.readPump()
}

type controlFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     any      `json:"id"`
}

type controlAck struct {
	Result any `json:"result"`
	ID     any `json:"id"`
}

func marshalAck(result, id any) []byte {
	b, _ := json.Marshal(controlAck{Result: result, ID: id})
	return b
}

// handleControl applies one inbound frame and returns the response to queue,
// or nil. Malformed frames and unknown methods are ignored without touching
// the cooldown clock; frames inside the cooldown are dropped silently.
func (c *Client) handleControl(raw []byte, now time.Time) []byte {
	var frame controlFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil
	}
	if frame.Method == "" {
		return nil
	}
	if !c.lastCtrl.IsZero() && now.Sub(c.lastCtrl) < c.hub.ctrlCooldown {
		return nil
	}

	switch strings.ToUpper(frame.Method) {
	case "SUBSCRIBE":
		c.lastCtrl = now
		c.hub.subscribe(c, frame.Params)
		return marshalAck(nil, frame.ID)

	case "UNSUBSCRIBE":
		c.lastCtrl = now
		c.hub.unsubscribe(c, frame.Params)
		return marshalAck(nil, frame.ID)

	case "LIST_SUBSCRIPTIONS":
		c.lastCtrl = now
		return marshalAck(c.hub.listStreams(c), frame.ID)

	case "PING":
		c.lastCtrl = now
		return []byte(`{"method":"PONG"}`)

	default:
		return nil
	}
}

// readPump reads control frames from the client and feeds them to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				c.hub.logger.Printf("read error: %v", err)
			}
			return
		}

		if resp := c.handleControl(message, time.Now()); resp != nil {
			c.hub.reply(c, resp)
		}
	}
}

// writePump serializes all writes to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				_ = w.Close()
				return
			}

			// batch queued messages into same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				if msg := <-c.send; msg != nil {
					if _, err := w.Write([]byte("\n")); err != nil {
						break
					}
					if _, err := w.Write(msg); err != nil {
						break
					}
				}
			}

			if err := w.Close(); err != nil {
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
