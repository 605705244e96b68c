package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/waylio/waylio-platform/internal/http/respond"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// TokenVerifier validates access tokens presented on connect.
type TokenVerifier interface {
	ParseAccess(token string) (*identity.Claims, error)
}

// ClientMessage is sent by staff clients to follow additional doctor queues.
type ClientMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub      *Hub
	tokens   TokenVerifier
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewHandler builds the /ws handler. allowedOrigins follows the CORS list; "*" allows any.
func NewHandler(hub *Hub, tokens TokenVerifier, allowedOrigins []string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// ChannelsFor returns the channels a caller joins on connect.
func ChannelsFor(c identity.Caller) []string {
	channels := []string{RoleChannel(string(c.Role)), UserChannel(c.UserID)}
	if c.Role == identity.RoleDoctor {
		channels = append(channels, DoctorChannel(c.UserID))
	}
	return channels
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		respond.Error(w, r, h.logger, identity.ErrInvalidToken)
		return
	}
	claims, err := h.tokens.ParseAccess(token)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	caller := claims.Caller()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(uuid.NewString(), caller.UserID, string(caller.Role))
	h.hub.Register(client, ChannelsFor(caller)...)
	h.logger.Debug("websocket connected", "client_id", client.ID, "user_id", caller.UserID, "role", string(caller.Role))

	go h.writePump(client, conn)
	go h.readPump(client, caller, conn)
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) readPump(client *Client, caller identity.Caller, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.process(client, caller, msg)
	}
}

// process lets reception and admin follow doctor queues. Other channels are fixed at connect.
func (h *Handler) process(client *Client, caller identity.Caller, msg ClientMessage) {
	if !caller.HasRole(identity.RoleReception, identity.RoleAdmin) {
		return
	}
	var channels []string
	for _, ch := range msg.Channels {
		if strings.HasPrefix(ch, "doctor:") && len(ch) > len("doctor:") {
			channels = append(channels, ch)
		}
	}
	switch msg.Action {
	case "subscribe":
		h.hub.Join(client, channels...)
	case "unsubscribe":
		h.hub.Leave(client, channels...)
	}
}

func (h *Handler) writePump(client *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
