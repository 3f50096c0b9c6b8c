package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/smprofiler/pkg/blobstore"
	"github.com/harun/smprofiler/pkg/profiler"
	"github.com/harun/smprofiler/pkg/retrieval"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Seq   int64           `json:"seq"`
	Data  json.RawMessage `json:"data"`
}

func startEventServer(t *testing.T) (*httptest.Server, *Server, *EventHub, *profiler.Registry) {
	t.Helper()

	var hub *EventHub
	registry := profiler.NewRegistry(profiler.WithObserver(func(ev profiler.Event) { hub.Observe(ev) }))
	hub = NewEventHub(registry.Count, "", testLogger())

	fetcher := retrieval.NewService(blobstore.NewFSStore(afero.NewMemMapFs(), "", 0))
	server, err := NewServer(ServerOptions{}, registry, fetcher, hub, testLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, server, hub, registry
}

func dialEvents(t *testing.T, ts *httptest.Server, hub *EventHub, want int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/profiler/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Count() == want }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) eventEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg eventEnvelope
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestEventStreamSessionEvents(t *testing.T) {
	ts, server, hub, _ := startEventServer(t)
	conn := dialEvents(t, ts, hub, 1)
	h := server.Handler()

	rec := do(t, h, http.MethodPost, "/api/profiler")
	require.Equal(t, http.StatusOK, rec.Code)
	var created profiler.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	msg := readEvent(t, conn)
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, EventSessionCreated, msg.Event)
	var data SessionEventData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, created, data.Session)
	assert.Equal(t, 1, data.Live)
	firstSeq := msg.Seq

	rec = do(t, h, http.MethodDelete, "/api/profiler/"+created.ID)
	require.Equal(t, http.StatusNoContent, rec.Code)

	msg = readEvent(t, conn)
	assert.Equal(t, EventSessionTerminated, msg.Event)
	assert.Greater(t, msg.Seq, firstSeq)
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, created.ID, data.Session.ID)
	assert.Equal(t, 0, data.Live)
}

func TestEventStreamHeartbeat(t *testing.T) {
	ts, _, hub, registry := startEventServer(t)
	conn := dialEvents(t, ts, hub, 1)

	registry.Create()
	_ = readEvent(t, conn)

	hub.Heartbeat()
	msg := readEvent(t, conn)
	assert.Equal(t, EventHeartbeat, msg.Event)

	var data HeartbeatData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "alive", data.Status)
	assert.Equal(t, 1, data.Live)
}

func TestEventStreamFanOut(t *testing.T) {
	ts, _, hub, _ := startEventServer(t)
	first := dialEvents(t, ts, hub, 1)
	second := dialEvents(t, ts, hub, 2)

	hub.Broadcast("custom", map[string]int{"n": 1})

	assert.Equal(t, "custom", readEvent(t, first).Event)
	assert.Equal(t, "custom", readEvent(t, second).Event)
}

func TestEventStreamDisconnect(t *testing.T) {
	ts, _, hub, _ := startEventServer(t)
	conn := dialEvents(t, ts, hub, 1)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamShutdown(t *testing.T) {
	ts, server, hub, _ := startEventServer(t)
	conn := dialEvents(t, ts, hub, 1)

	require.NoError(t, server.Stop(context.Background()))

	msg := readEvent(t, conn)
	assert.Equal(t, EventShutdown, msg.Event)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	assert.Equal(t, 0, hub.Count())
}

func TestEventHubRejectsForeignOrigin(t *testing.T) {
	ts, _, _, _ := startEventServer(t)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/profiler/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
