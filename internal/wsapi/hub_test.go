package wsapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lavizord/roulette-server/internal/messages"
	"github.com/Lavizord/roulette-server/internal/models"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func readCommand(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := messages.DecodeRawMessage(data)
	require.NoError(t, err)
	return msg.Command
}

func readReply(t *testing.T, conn *websocket.Conn) messages.GenericMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := messages.DecodeTypedMessage[messages.GenericMessage](data)
	require.NoError(t, err)
	require.Equal(t, "message", msg.Command)
	return msg.Value
}

func event(t *testing.T, kind models.EventKind, roundID uint64) string {
	data, err := messages.GenerateEventMessage(models.Event{Kind: kind, RoundID: roundID})
	require.NoError(t, err)
	return string(data)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleConnection)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	all := dial(t, srv)
	one := dial(t, srv)
	waitFor(t, func() bool { return hub.Len() == 2 })

	require.NoError(t, one.WriteMessage(websocket.TextMessage, []byte(`{"command":"subscribe","value":{"round_id":2}}`)))
	assert.Equal(t, "message", readCommand(t, one))

	hub.Broadcast(event(t, models.EventBetPlaced, 1))
	hub.Broadcast(event(t, models.EventRoundResolved, 2))

	assert.Equal(t, "bet_placed", readCommand(t, all))
	assert.Equal(t, "round_resolved", readCommand(t, all))
	assert.Equal(t, "round_resolved", readCommand(t, one))

	hub.Broadcast("not an event")

	require.NoError(t, one.WriteMessage(websocket.TextMessage, []byte(`{"command":"bet_won"}`)))
	assert.Equal(t, "message", readCommand(t, one))

	all.Close()
	waitFor(t, func() bool { return hub.Len() == 1 })
}

func TestMalformedSubscribeKeepsFilter(t *testing.T) {
	hub := NewHub(nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleConnection)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.Len() == 1 })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"subscribe","value":{"round_id":2}}`)))
	assert.Equal(t, "subscribed", readReply(t, conn).MessageType)

	for _, bad := range []string{
		`{"command":"subscribe","value":{"round_id":"two"}}`,
		`{"command":"subscribe","value":[2]}`,
		`{"command":"subscribe"}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(bad)))
		assert.Equal(t, "error", readReply(t, conn).MessageType, bad)
	}

	hub.Broadcast(event(t, models.EventBetPlaced, 1))
	hub.Broadcast(event(t, models.EventRoundResolved, 2))
	assert.Equal(t, "round_resolved", readCommand(t, conn))
}
