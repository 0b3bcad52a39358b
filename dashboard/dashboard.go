// Package dashboard pushes live mining/consensus state to connected
// websocket clients: hashrate and difficulty stats, newly accepted blocks,
// and individual share submissions.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config holds websocket server configuration.
type Config struct {
	Logger         *slog.Logger
	StatsInterval  time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Logger:         slog.Default(),
		StatsInterval:  2 * time.Second,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 4096,
	}
}

// MessageType identifies the shape of Message.Data.
type MessageType string

const (
	MsgTypeStats       MessageType = "stats"
	MsgTypeNewBlock    MessageType = "new_block"
	MsgTypeNewShare    MessageType = "new_share"
	MsgTypeSubscribe   MessageType = "subscribe"
	MsgTypeUnsubscribe MessageType = "unsubscribe"
	MsgTypePing        MessageType = "ping"
	MsgTypePong        MessageType = "pong"
)

// Message is a single websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// StatsData holds the node/miner's live hashrate and difficulty snapshot.
type StatsData struct {
	Hashrate        float64 `json:"hashrate"`
	SharesValid     uint64  `json:"shares_valid"`
	NetworkDiff     string  `json:"network_difficulty"`
	BestHeight      uint64  `json:"best_height"`
	ExpectedPerHour float64 `json:"expected_blocks_per_hour"`
}

// BlockData announces a newly accepted block.
type BlockData struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	Author    string `json:"author"`
	Reward    string `json:"reward"`
	Version   int    `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// ShareData announces a worker's seal submission outcome.
type ShareData struct {
	WorkerID string `json:"worker_id"`
	Accepted bool   `json:"accepted"`
}

// SubscribeRequest lists the channels a client wants to receive:
// "stats", "blocks", "shares".
type SubscribeRequest struct {
	Channels []string `json:"channels"`
}

// Client is a single connected websocket consumer.
type Client struct {
	ID            string
	conn          *websocket.Conn
	server        *Server
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// Server broadcasts dashboard updates to all connected clients.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	clients  map[string]*Client
	mu       sync.RWMutex
	logger   *slog.Logger

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	statsProvider func() *StatsData

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds a dashboard websocket server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     cfg.Logger.With("component", "dashboard"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetStatsProvider installs the callback polled every StatsInterval to
// produce the next broadcast StatsData.
func (s *Server) SetStatsProvider(fn func() *StatsData) {
	s.statsProvider = fn
}

// Start launches the server's broadcast loop and periodic stats poller.
func (s *Server) Start() {
	s.wg.Add(2)
	go s.run()
	go s.statsBroadcaster()
}

// Stop shuts the server down, closing every connected client.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Handler returns the HTTP handler that upgrades incoming requests to
// websocket connections.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("failed to upgrade connection", "error", err)
			return
		}

		client := &Client{
			ID:            uuid.NewString(),
			conn:          conn,
			server:        s,
			send:          make(chan []byte, 256),
			subscriptions: make(map[string]bool),
		}

		s.register <- client

		go client.writePump(s.cfg)
		go client.readPump(s.cfg)
	}
}

func (s *Server) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client.ID] = client
			s.mu.Unlock()
			s.logger.Debug("client connected", "id", client.ID)
		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client.ID]; ok {
				delete(s.clients, client.ID)
				close(client.send)
			}
			s.mu.Unlock()
			s.logger.Debug("client disconnected", "id", client.ID)
		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			s.mu.RLock()
			for _, client := range s.clients {
				if client.shouldReceive(msg) {
					select {
					case client.send <- data:
					default:
					}
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *Server) statsBroadcaster() {
	defer s.wg.Done()

	interval := s.cfg.StatsInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.statsProvider == nil {
				continue
			}
			stats := s.statsProvider()
			if stats == nil {
				continue
			}
			data, err := json.Marshal(stats)
			if err != nil {
				continue
			}
			s.broadcast <- &Message{Type: MsgTypeStats, Data: data, Timestamp: time.Now().Unix()}
		}
	}
}

// BroadcastBlock announces a newly accepted block to subscribed clients.
func (s *Server) BroadcastBlock(block *BlockData) {
	data, err := json.Marshal(block)
	if err != nil {
		return
	}
	s.broadcast <- &Message{Type: MsgTypeNewBlock, Data: data, Timestamp: time.Now().Unix()}
}

// BroadcastShare announces a worker's seal-submission outcome to subscribed
// clients.
func (s *Server) BroadcastShare(share *ShareData) {
	data, err := json.Marshal(share)
	if err != nil {
		return
	}
	s.broadcast <- &Message{Type: MsgTypeNewShare, Data: data, Timestamp: time.Now().Unix()}
}

func (c *Client) shouldReceive(msg *Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch msg.Type {
	case MsgTypeStats:
		return c.subscriptions["stats"]
	case MsgTypeNewBlock:
		return c.subscriptions["blocks"]
	case MsgTypeNewShare:
		return c.subscriptions["shares"]
	default:
		return false
	}
}

func (c *Client) readPump(cfg Config) {
	defer func() {
		c.server.unregister <- c
		c.conn.Close()
	}()

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	maxSize := cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = 4096
	}

	c.conn.SetReadLimit(maxSize)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Debug("websocket error", "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) writePump(cfg Config) {
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MsgTypeSubscribe:
		var req SubscribeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		c.mu.Lock()
		for _, ch := range req.Channels {
			c.subscriptions[ch] = true
		}
		c.mu.Unlock()

	case MsgTypeUnsubscribe:
		var req SubscribeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		c.mu.Lock()
		for _, ch := range req.Channels {
			delete(c.subscriptions, ch)
		}
		c.mu.Unlock()

	case MsgTypePing:
		response := Message{Type: MsgTypePong, Timestamp: time.Now().Unix()}
		data, err := json.Marshal(response)
		if err != nil {
			return
		}
		select {
		case c.send <- data:
		default:
		}
	}
}
