package gateway

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/terminal-bench/flightsurety/shared/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsBatchSize  = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSClient is one event-stream subscriber. Each client reads the event
// log with its own cursor, so a slow client never holds back the others.
type WSClient struct {
	ID   uuid.UUID
	Conn *websocket.Conn

	cursor    atomic.Uint64
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *WSClient) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.Conn.Close()
	})
}

func (g *Gateway) handleWebSocket(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		badRequest(c, "invalid after")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &WSClient{
		ID:     uuid.New(),
		Conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
	client.cursor.Store(after)

	g.wsMu.Lock()
	g.wsClients[client.ID] = client
	g.wsMu.Unlock()

	g.logger.Debug().Str("client", client.ID.String()).Uint64("after", after).Msg("event stream opened")

	go g.wsReadPump(client)
	go g.wsWritePump(client)
}

// wsReadPump drains control frames and detects disconnects
func (g *Gateway) wsReadPump(client *WSClient) {
	defer func() {
		g.wsMu.Lock()
		delete(g.wsClients, client.ID)
		g.wsMu.Unlock()
		client.close()
	}()

	client.Conn.SetReadLimit(512)
	client.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsWritePump streams committed events after the client's cursor
func (g *Gateway) wsWritePump(client *WSClient) {
	log := g.app.Data().Log()
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	ready := make(chan struct{}, 1)
	go func() {
		for {
			if err := log.Wait(client.ctx, client.cursor.Load()); err != nil {
				return
			}
			select {
			case ready <- struct{}{}:
			case <-client.ctx.Done():
				return
			}
		}
	}()

	for {
		for {
			batch := log.After(client.cursor.Load(), wsBatchSize)
			if len(batch) == 0 {
				break
			}
			if err := client.send(batch); err != nil {
				return
			}
		}

		select {
		case <-ready:
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.ctx.Done():
			return
		}
	}
}

func (c *WSClient) send(batch []events.Event) error {
	for _, e := range batch {
		c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.Conn.WriteJSON(e); err != nil {
			return err
		}
		c.cursor.Store(e.Seq)
	}
	return nil
}
