// Package ws - websocket транспорт сессии: насосы чтения и записи поверх gorilla/websocket.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"habitTracker/internal/logger"
	"habitTracker/internal/slices"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var (
	ErrClientClosed = errors.New("ws: клиент закрыт")
	ErrSlowClient   = errors.New("ws: клиент не успевает читать")
)

type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	mtx  sync.RWMutex
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send кладёт кадр в очередь записи. Переполненная очередь закрывает соединение:
// вкладка переподключится и получит свежий снимок.
func (c *Client) Send(f slices.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.mtx.RLock()
	defer c.mtx.RUnlock()
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		go c.Close()
		return ErrSlowClient
	}
}

// Run запускает запись в отдельной горутине и читает до разрыва соединения
func (c *Client) Run(onMessage func([]byte)) {
	go c.writePump()
	c.readPump(onMessage)
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.mtx.Lock()
		close(c.done)
		c.mtx.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Client) readPump(onMessage func([]byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WS: Соединение оборвано", zap.Error(err))
			}
			return
		}
		onMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("WS: Ошибка записи", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
