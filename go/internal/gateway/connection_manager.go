package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns the player sockets of every live session. Every frame
// the gateway sends is addressed to one seat, so sockets are indexed by
// session and then by player.
type ConnectionManager struct {
	mu    sync.RWMutex
	seats map[uuid.UUID]map[string]map[*Connection]struct{}

	upgrader websocket.Upgrader
	config   ConnectionConfig
	outbound chan BroadcastMessage

	onMessage    func(*Connection, []byte)
	onDisconnect func(*Connection)
}

// Connection is one player socket.
type Connection struct {
	ID          string
	PlayerID    string
	SessionID   uuid.UUID
	Conn        *websocket.Conn
	Send        chan []byte
	Manager     *ConnectionManager
	ConnectedAt time.Time

	lastSeen atomic.Int64
}

// LastSeen is the time of the last client frame or pong.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Connection) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// offer queues data without blocking and reports whether it fit.
func (c *Connection) offer(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// SendBuffer is how many frames a socket may fall behind before it is dropped.
	SendBuffer  int
	CheckOrigin func(r *http.Request) bool
}

// BroadcastMessage is a frame for every socket of one seat.
type BroadcastMessage struct {
	SessionID uuid.UUID
	PlayerID  string
	Message   *ServerMessage
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      32,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConnectionConfig().SendBuffer
	}
	return &ConnectionManager{
		seats: make(map[uuid.UUID]map[string]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		outbound: make(chan BroadcastMessage, 1000),
	}
}

// SetHandlers installs the callbacks for client frames and disconnects.
// Must be called before the first upgrade.
func (cm *ConnectionManager) SetHandlers(onMessage func(*Connection, []byte), onDisconnect func(*Connection)) {
	cm.onMessage = onMessage
	cm.onDisconnect = onDisconnect
}

// Start delivers queued frames until ctx is done, then closes every socket.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.outbound:
			cm.deliver(message)
		}
	}
}

// UpgradeConnection upgrades the request and registers the socket under its seat.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerID string, sessionID uuid.UUID) (*Connection, error) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		SessionID:   sessionID,
		Conn:        ws,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	conn.touch()

	cm.add(conn)
	go conn.writeLoop()
	go conn.readLoop()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", playerID).
		Str("session_id", sessionID.String()).
		Msg("WebSocket connection established")

	return conn, nil
}

func (cm *ConnectionManager) add(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	players, ok := cm.seats[conn.SessionID]
	if !ok {
		players = make(map[string]map[*Connection]struct{})
		cm.seats[conn.SessionID] = players
	}
	sockets, ok := players[conn.PlayerID]
	if !ok {
		sockets = make(map[*Connection]struct{})
		players[conn.PlayerID] = sockets
	}
	sockets[conn] = struct{}{}
}

// remove unregisters conn and closes its send queue. Only the first call for a
// connection reports true.
func (cm *ConnectionManager) remove(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	sockets := cm.seats[conn.SessionID][conn.PlayerID]
	if _, ok := sockets[conn]; !ok {
		return false
	}
	delete(sockets, conn)
	close(conn.Send)
	if len(sockets) == 0 {
		delete(cm.seats[conn.SessionID], conn.PlayerID)
	}
	if len(cm.seats[conn.SessionID]) == 0 {
		delete(cm.seats, conn.SessionID)
	}
	return true
}

// drop removes conn and fires the disconnect callback once.
func (cm *ConnectionManager) drop(conn *Connection) {
	if !cm.remove(conn) {
		return
	}
	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("session_id", conn.SessionID.String()).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection closed")
	if cm.onDisconnect != nil {
		cm.onDisconnect(conn)
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, players := range cm.seats {
		for _, sockets := range players {
			for conn := range sockets {
				all = append(all, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.drop(conn)
	}
}

// BroadcastToPlayer queues a frame for every socket of one seat.
func (cm *ConnectionManager) BroadcastToPlayer(sessionID uuid.UUID, playerID string, message *ServerMessage) {
	select {
	case cm.outbound <- BroadcastMessage{SessionID: sessionID, PlayerID: playerID, Message: message}:
	default:
		log.Warn().
			Str("session_id", sessionID.String()).
			Str("player_id", playerID).
			Msg("outbound queue full, dropping frame")
	}
}

// SendTo writes a frame to one socket, dropping it if the socket is gone.
func (cm *ConnectionManager) SendTo(conn *Connection, message *ServerMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if _, ok := cm.seats[conn.SessionID][conn.PlayerID][conn]; !ok {
		return
	}
	if !conn.offer(data) {
		log.Warn().Str("connection_id", conn.ID).Msg("send queue full, dropping reply")
	}
}

func (cm *ConnectionManager) deliver(message BroadcastMessage) {
	data, err := json.Marshal(message.Message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame")
		return
	}

	// Offers run under the read lock so remove cannot close a queue mid-send.
	var lagging []*Connection
	cm.mu.RLock()
	sockets := cm.seats[message.SessionID][message.PlayerID]
	for conn := range sockets {
		if !conn.offer(data) {
			lagging = append(lagging, conn)
		}
	}
	delivered := len(sockets) - len(lagging)
	cm.mu.RUnlock()

	for _, conn := range lagging {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID).
			Msg("socket fell behind, closing it")
		cm.drop(conn)
		_ = conn.Conn.Close()
	}

	log.Debug().
		Str("message_type", string(message.Message.Type)).
		Str("session_id", message.SessionID.String()).
		Str("player_id", message.PlayerID).
		Int("sockets", delivered).
		Msg("frame delivered")
}

// ConnectionStats summarizes open sockets.
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	ConnectedPlayers   int            `json:"connected_players"`
	SessionConnections map[string]int `json:"session_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveSessions:     len(cm.seats),
		SessionConnections: make(map[string]int, len(cm.seats)),
	}
	for sessionID, players := range cm.seats {
		n := 0
		for _, sockets := range players {
			n += len(sockets)
		}
		stats.ConnectedPlayers += len(players)
		stats.TotalConnections += n
		stats.SessionConnections[sessionID.String()] = n
	}
	return stats
}

func (c *Connection) writeLoop() {
	cfg := c.Manager.config
	ping := time.NewTicker(cfg.PingInterval)
	defer func() {
		ping.Stop()
		_ = c.Conn.Close()
		c.Manager.drop(c)
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write frame")
				return
			}

		case <-ping.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readLoop() {
	cfg := c.Manager.config
	defer func() {
		c.Manager.drop(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			return
		}
		c.touch()
		_ = c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		if c.Manager.onMessage != nil {
			c.Manager.onMessage(c, frame)
		}
	}
}
