package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/third-eye/overseer/pkg/store"
)

// listenTimeout bounds how long a LISTEN command may block when the first
// subscriber of a channel arrives.
const listenTimeout = 10 * time.Second

// ConnectionManager owns the WebSocket subscriber sets of this process.
// Each pod runs one instance; cross-pod delivery arrives through the
// NotifyListener, which dispatches into Broadcast.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	channelMu sync.RWMutex
	channels  map[string]map[string]bool

	events      store.EventStore
	replayLimit int

	listenerMu sync.RWMutex
	listener   *NotifyListener

	writeTimeout time.Duration
}

// Connection is one WebSocket client, pinned to a single session channel.
//
// channel is written once before the read loop starts and never mutated, so
// it needs no lock.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	channel string
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewConnectionManager creates a manager replaying replayLimit journal
// entries to each new subscriber.
func NewConnectionManager(events store.EventStore, replayLimit int, writeTimeout time.Duration) *ConnectionManager {
	if replayLimit <= 0 {
		replayLimit = DefaultReplayLimit
	}
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		channels:     make(map[string]map[string]bool),
		events:       events,
		replayLimit:  replayLimit,
		writeTimeout: writeTimeout,
	}
}

// SetListener attaches the NotifyListener for dynamic LISTEN/UNLISTEN.
// Called once at startup; nil (no listener) means single-process delivery.
func (m *ConnectionManager) SetListener(l *NotifyListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// HandleSession runs the lifecycle of one subscriber: register on the
// session channel, send the settings snapshot, replay the recent journal
// oldest-first, then stream live until the connection closes. Blocks until
// then.
func (m *ConnectionManager) HandleSession(parentCtx context.Context, conn *websocket.Conn, sess *store.Session, effectiveSettings map[string]any) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:      uuid.New().String(),
		Conn:    conn,
		channel: SessionChannel(sess.ID),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := m.register(c); err != nil {
		slog.Error("failed to register subscriber", "session_id", sess.ID, "error", err)
		cancel()
		_ = conn.Close(websocket.StatusInternalError, "subscription failed")
		return
	}
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          MessageTypeConnected,
		"connection_id": c.ID,
	})
	m.sendJSON(c, NewSettingsSnapshot(sess.ID, sess.Profile, effectiveSettings))
	m.replay(ctx, c, sess.ID)

	// Read loop: only keepalive traffic is expected from the client.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.sendJSON(c, map[string]string{"type": MessageTypeError, "message": "invalid message"})
			continue
		}
		if msg.Action == "ping" {
			m.sendJSON(c, map[string]string{"type": MessageTypePong})
		}
	}
}

// Broadcast delivers a serialized message to every local subscriber of the
// channel. A subscriber that fails its send is dropped from the set; the
// producer never blocks on a slow client beyond the write timeout.
func (m *ConnectionManager) Broadcast(channel string, message []byte) {
	m.channelMu.RLock()
	ids := make([]string, 0, len(m.channels[channel]))
	for id := range m.channels[channel] {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := m.sendRaw(conn, message); err != nil {
			slog.Warn("dropping subscriber after failed send",
				"connection_id", conn.ID, "channel", channel, "error", err)
			conn.cancel()
		}
	}
}

// ActiveConnections returns the number of live subscribers in this process.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// subscriberCount is used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()
	return len(m.channels[channel])
}

// register adds the connection to its channel, issuing LISTEN when it is
// the channel's first subscriber. LISTEN completes before replay starts, so
// no event published between replay and live subscription is lost.
func (m *ConnectionManager) register(c *Connection) error {
	m.channelMu.Lock()
	needsListen := false
	if _, exists := m.channels[c.channel]; !exists {
		m.channels[c.channel] = make(map[string]bool)
		needsListen = true
	}
	m.channels[c.channel][c.ID] = true
	m.channelMu.Unlock()

	if needsListen {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			listenCtx, cancel := context.WithTimeout(context.Background(), listenTimeout)
			defer cancel()
			if err := l.Subscribe(listenCtx, c.channel); err != nil {
				m.channelMu.Lock()
				delete(m.channels[c.channel], c.ID)
				if len(m.channels[c.channel]) == 0 {
					delete(m.channels, c.channel)
				}
				m.channelMu.Unlock()
				return err
			}
		}
	}

	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	return nil
}

// unregister removes the connection, issuing UNLISTEN when it was the
// channel's last subscriber.
func (m *ConnectionManager) unregister(c *Connection) {
	m.channelMu.Lock()
	if subs, exists := m.channels[c.channel]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, c.channel)
			m.listenerMu.RLock()
			l := m.listener
			m.listenerMu.RUnlock()
			if l != nil {
				channel := c.channel
				go func() {
					// Re-check: a rapid unsubscribe/resubscribe cycle must
					// not drop an active LISTEN.
					m.channelMu.RLock()
					_, resubscribed := m.channels[channel]
					m.channelMu.RUnlock()
					if resubscribed {
						return
					}
					if err := l.Unsubscribe(context.Background(), channel); err != nil {
						slog.Error("failed to UNLISTEN channel", "channel", channel, "error", err)
					}
				}()
			}
		}
	}
	m.channelMu.Unlock()

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// replay sends the most recent journal entries oldest-first.
func (m *ConnectionManager) replay(ctx context.Context, c *Connection, sessionID string) {
	entries, err := m.events.TailEvents(ctx, sessionID, m.replayLimit)
	if err != nil {
		slog.Error("replay query failed", "session_id", sessionID, "error", err)
		return
	}
	for _, entry := range entries {
		payload, err := json.Marshal(MessageFromEvent(entry))
		if err != nil {
			continue
		}
		if err := m.sendRaw(c, payload); err != nil {
			slog.Warn("failed to send replay event", "connection_id", c.ID, "error", err)
			return
		}
	}
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("failed to send message", "connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
