package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepakpathik/deskbridge/internal/relay"
	"github.com/deepakpathik/deskbridge/internal/signaling"
)

func newTestRelay(t *testing.T, origins ...string) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := relay.NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, origins, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *signaling.Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func expect(t *testing.T, conn *websocket.Conn, typ signaling.MessageType) *signaling.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg signaling.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, typ, msg.Type)
	return &msg
}

func TestHealthCheck(t *testing.T) {
	srv := newTestRelay(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}

func TestRendezvousOverWebsocket(t *testing.T) {
	srv := newTestRelay(t)
	host := dial(t, srv)
	caller := dial(t, srv)

	send(t, host, &signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: "H1", PeerID: "H1"})
	assert.Equal(t, "H1", expect(t, host, signaling.MessageTypeRoomJoined).RoomID)

	send(t, caller, &signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: "GHOST", PeerID: "C1"})
	expect(t, caller, signaling.MessageTypeRoomNotFound)

	send(t, caller, &signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: "H1", PeerID: "C1"})
	assert.Equal(t, "H1", expect(t, caller, signaling.MessageTypeRoomJoined).RoomID)
	assert.Equal(t, "C1", expect(t, host, signaling.MessageTypeUserConnected).PeerID)

	offer, err := signaling.NewMessage(signaling.MessageTypeOffer, "H1", "C1",
		signaling.SessionDescription{Type: "offer", SDP: "v=0"})
	require.NoError(t, err)
	send(t, caller, offer)

	got := expect(t, host, signaling.MessageTypeOffer)
	var desc signaling.SessionDescription
	require.NoError(t, got.Decode(&desc))
	assert.Equal(t, "v=0", desc.SDP)

	// Transport loss is an implicit leave with an announcement.
	require.NoError(t, caller.Close())
	gone := expect(t, host, signaling.MessageTypeUserDisconnected)
	assert.Equal(t, "C1", gone.PeerID)
	assert.Equal(t, "H1", gone.RoomID)
}

func TestOriginCheck(t *testing.T) {
	srv := newTestRelay(t, "https://deskbridge.example")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://deskbridge.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	conn.Close()
}

func TestUpgraderAllowsAnyOriginByDefault(t *testing.T) {
	up := NewUpgrader(nil)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, up.CheckOrigin(r))

	up = NewUpgrader([]string{"*"})
	assert.True(t, up.CheckOrigin(r))
}
