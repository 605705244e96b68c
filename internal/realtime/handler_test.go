package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waylio/waylio-platform/internal/identity"
)

func callerOf(id, role string) identity.Caller {
	return identity.Caller{UserID: id, Role: identity.Role(role)}
}

func newTokenIssuer(t *testing.T) *identity.Tokens {
	t.Helper()
	tokens, err := identity.NewTokens(identity.TokenConfig{AccessSecret: "a-secret", RefreshSecret: "r-secret"})
	require.NoError(t, err)
	return tokens
}

func dial(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	return websocket.DefaultDialer.Dial(url, header)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewHandler(hub, newTokenIssuer(t), []string{"*"}, nil))
	defer srv.Close()

	_, resp, err := dial(t, srv, "", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_DoctorJoinsOwnChannels(t *testing.T) {
	tokens := newTokenIssuer(t)
	hub := NewHub(nil, nil)
	mux := http.NewServeMux()
	mux.Handle("/ws", NewHandler(hub, tokens, []string{"*"}, nil))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pair, err := tokens.Issue(&identity.User{ID: "doc-1", Email: "d@example.com", Role: identity.RoleDoctor})
	require.NoError(t, err)

	conn, _, err := dial(t, srv, "?token="+pair.AccessToken, nil)
	require.NoError(t, err)
	defer conn.Close()

	waitFor(t, func() bool { return hub.ChannelCount(DoctorChannel("doc-1")) == 1 })
	assert.Equal(t, 1, hub.ChannelCount(RoleChannel("DOCTOR")))
	assert.Equal(t, 1, hub.ChannelCount(UserChannel("doc-1")))

	require.NoError(t, hub.Emit(context.Background(), DoctorChannel("doc-1"), EventQueueUpdate, map[string]any{"queue": []string{}}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, EventQueueUpdate, env.Event)
}

func TestHandler_ReceptionCanFollowDoctorQueue(t *testing.T) {
	tokens := newTokenIssuer(t)
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewHandler(hub, tokens, []string{"*"}, nil))
	defer srv.Close()

	pair, err := tokens.Issue(&identity.User{ID: "rec-1", Role: identity.RoleReception})
	require.NoError(t, err)

	conn, _, err := dial(t, srv, "", http.Header{"Authorization": []string{"Bearer " + pair.AccessToken}})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channels: []string{"doctor:doc-9", "user:someone"}}))
	waitFor(t, func() bool { return hub.ChannelCount("doctor:doc-9") == 1 })
	assert.Equal(t, 0, hub.ChannelCount("user:someone"))
}

func TestHandler_PatientCannotFollowDoctorQueue(t *testing.T) {
	tokens := newTokenIssuer(t)
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewHandler(hub, tokens, []string{"*"}, nil))
	defer srv.Close()

	pair, err := tokens.Issue(&identity.User{ID: "pat-1", Role: identity.RolePatient})
	require.NoError(t, err)
	conn, _, err := dial(t, srv, "?token="+pair.AccessToken, nil)
	require.NoError(t, err)
	defer conn.Close()

	waitFor(t, func() bool { return hub.ChannelCount(UserChannel("pat-1")) == 1 })
	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channels: []string{"doctor:doc-9"}}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, hub.ChannelCount("doctor:doc-9"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))
}
