package dashboard

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"BikeShareDashboard/src/storage"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 写超时
	writeWait = 10 * time.Second

	// 等待 pong 的时间
	pongWait = 60 * time.Second

	// ping 周期, 必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 客户端只会发 pong, 消息很小
	maxMessageSize = 512
)

// ReloadMessage 数据重新加载后推送给页面
var ReloadMessage = []byte(`{"type":"reload"}`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 单机部署, 不限制来源
	},
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub 管理页面的 websocket 连接
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	clients    map[*client]struct{}
	count      atomic.Int64
	logger     *storage.Logger
}

func NewHub(logger *storage.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		logger:     logger,
	}
}

// Run 阻塞直到 ctx 结束, 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int64(len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 发送缓冲已满, 断开慢客户端
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

// Broadcast 不阻塞, 队列满时丢弃
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warning("websocket 广播队列已满, 丢弃消息")
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// ServeWS 升级连接并注册到 hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warning("websocket 升级失败", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 8)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump 只处理 pong 和关闭, 客户端消息直接丢弃
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
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
