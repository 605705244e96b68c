package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/waylio/waylio-platform/internal/observability/metrics"
	"github.com/waylio/waylio-platform/pkg/logging"
)

const clientBuffer = 64

// Client is one connected socket.
type Client struct {
	ID       string
	UserID   string
	Role     string
	Send     chan []byte
	channels map[string]struct{}
}

// NewClient allocates a client with a bounded send buffer.
func NewClient(id, userID, role string) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		Role:     role,
		Send:     make(chan []byte, clientBuffer),
		channels: make(map[string]struct{}),
	}
}

// Hub tracks clients and their channel memberships.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	all      map[*Client]struct{}
	metrics  *metrics.RealtimeMetrics
	logger   *logging.Logger
}

func NewHub(m *metrics.RealtimeMetrics, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		all:      make(map[*Client]struct{}),
		metrics:  m,
		logger:   logger,
	}
}

// Register adds a client and joins it to channels.
func (h *Hub) Register(c *Client, channels ...string) {
	h.mu.Lock()
	h.all[c] = struct{}{}
	h.joinLocked(c, channels)
	n := len(h.all)
	h.mu.Unlock()
	h.metrics.SetClients(n)
}

// Join adds channels to a registered client.
func (h *Hub) Join(c *Client, channels ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[c]; !ok {
		return
	}
	h.joinLocked(c, channels)
}

func (h *Hub) joinLocked(c *Client, channels []string) {
	for _, ch := range channels {
		if h.channels[ch] == nil {
			h.channels[ch] = make(map[*Client]struct{})
		}
		h.channels[ch][c] = struct{}{}
		c.channels[ch] = struct{}{}
	}
}

// Leave removes channels from a client.
func (h *Hub) Leave(c *Client, channels ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		h.leaveLocked(c, ch)
	}
}

func (h *Hub) leaveLocked(c *Client, ch string) {
	if members, ok := h.channels[ch]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, ch)
		}
	}
	delete(c.channels, ch)
}

// Unregister drops the client from every channel and closes its send buffer.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.all[c]; !ok {
		h.mu.Unlock()
		return
	}
	for ch := range c.channels {
		h.leaveLocked(c, ch)
	}
	delete(h.all, c)
	close(c.Send)
	n := len(h.all)
	h.mu.Unlock()
	h.metrics.SetClients(n)
}

// Deliver writes env to every local member of its channel. Full buffers drop the frame.
func (h *Hub) Deliver(env Envelope) int {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("realtime: marshal envelope", "error", err, "event", env.Event)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.channels[env.Channel] {
		select {
		case c.Send <- data:
			delivered++
			h.metrics.ObserveDelivery(env.Event, true)
		default:
			h.metrics.ObserveDelivery(env.Event, false)
			h.logger.Warn("realtime: client buffer full, dropping event", "client_id", c.ID, "event", env.Event)
		}
	}
	return delivered
}

// Emit delivers payload to channel on this instance.
func (h *Hub) Emit(_ context.Context, channel, event string, payload any) error {
	env, err := NewEnvelope(channel, event, payload)
	if err != nil {
		return fmt.Errorf("realtime: marshal payload: %w", err)
	}
	h.Deliver(env)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) ChannelCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
