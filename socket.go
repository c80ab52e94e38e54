package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is any command sent over a host or player socket.
type clientMessage struct {
	Type       string          `json:"type"`
	RoundID    int             `json:"round_id,omitempty"`
	Timer      int             `json:"timer,omitempty"`
	Qualifiers int             `json:"qualifiers,omitempty"`
	Name       string          `json:"name,omitempty"`
	Team       string          `json:"team,omitempty"`
	PlayerID   string          `json:"player_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

// finalMessage is written and then the socket is closed.
type finalMessage struct {
	msg any
}

// client owns one websocket. Only writePump writes to conn.
type client struct {
	conn    *websocket.Conn
	send    chan any
	ctx     context.Context
	stopped chan struct{}
}

func newClient(ctx context.Context, conn *websocket.Conn) *client {
	return &client{
		conn:    conn,
		send:    make(chan any, 16),
		ctx:     ctx,
		stopped: make(chan struct{}),
	}
}

// push queues msg unless the socket is already going away.
func (c *client) push(msg any) {
	select {
	case c.send <- msg:
	case <-c.stopped:
	case <-c.ctx.Done():
	}
}

// finish queues msg as the last message on the socket.
func (c *client) finish(msg any) {
	c.push(finalMessage{msg: msg})
}

func (c *client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		close(c.stopped)
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			final, last := msg.(finalMessage)
			if last {
				msg = final.msg
			}

			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

			if last {
				c.close()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.ctx.Done():
			c.close()
			return
		}
	}
}

func (c *client) close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// readPump decodes messages until the connection fails, calling handle for
// each one in order. Undecodable messages are answered with an error.
func (c *client) readPump(handle func(clientMessage)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.push(errorMessage{
				Type:    "error",
				Error:   "validation_rejected",
				Reason:  "malformed_message",
				Message: err.Error(),
			})
			continue
		}

		handle(msg)
	}
}
