// Package wsapi pushes engine events to websocket clients.
package wsapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lavizord/roulette-server/internal/messages"
	"github.com/Lavizord/roulette-server/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	roundID uint64
}

func (c *Client) wants(roundID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundID == 0 || c.roundID == roundID
}

func (c *Client) follow(roundID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roundID = roundID
}

// Hub fans the event channel out to every connected client.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[*Client]struct{}),
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers an encoded event to the clients following its round. Slow clients are
// dropped instead of blocking the others.
func (h *Hub) Broadcast(payload string) {
	ev, err := messages.DecodeEvent([]byte(payload))
	if err != nil {
		logger.Default.Warnf("[wsapi] - dropping unreadable event: %v", err)
		return
	}
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if ev.RoundID != 0 && !c.wants(ev.RoundID) {
			continue
		}
		select {
		case c.send <- []byte(payload):
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		logger.Default.Warnf("[wsapi] - client %s too slow, disconnecting", c.conn.RemoteAddr())
		h.remove(c)
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Default.Warnf("[wsapi] - failed to upgrade: %v", err)
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(c)
	logger.Default.Debugf("[wsapi] - client connected: %s", conn.RemoteAddr())

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := messages.ParseMessage(data)
		if err != nil {
			c.reply("error", err.Error())
			continue
		}
		switch msg.Command {
		case "subscribe":
			var sub messages.Subscription
			if err := json.Unmarshal(msg.Value, &sub); err != nil {
				c.reply("error", fmt.Sprintf("invalid subscription: %v", err))
				continue
			}
			c.follow(sub.RoundID)
			c.reply("subscribed", "ok")
		case "unsubscribe":
			c.follow(0)
			c.reply("unsubscribed", "ok")
		}
	}
}

func (c *Client) reply(msgtype, text string) {
	data, err := messages.GenerateGenericMessage(msgtype, text)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
