package live

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/graduation-photo/internal/metrics"
	"github.com/sakif/graduation-photo/internal/model"
)

func newTestHub(t *testing.T, origins ...string) (*Hub, *httptest.Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	hub := NewHub(origins, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv, m
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsTimeChanges(t *testing.T) {
	hub, srv, m := newTestHub(t)
	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LiveClients))

	hub.TimeChanged(model.Time{ID: "slot-1", Capacity: 4, CampusID: "c1"})

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, "time", ev.Type)
		assert.Equal(t, "slot-1", ev.Time.ID)
		assert.Equal(t, 4, ev.Time.Capacity)
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, srv, m := newTestHub(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveClients))
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub, _, _ := newTestHub(t)
	assert.NotPanics(t, func() { hub.TimeChanged(model.Time{ID: "x"}) })
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, srv, _ := newTestHub(t, "https://photo.example.edu")
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://photo.example.edu")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestOriginChecker(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://a.example")

	assert.True(t, originChecker(nil)(r))
	assert.True(t, originChecker([]string{"*"})(r))
	assert.True(t, originChecker([]string{"https://a.example"})(r))
	assert.False(t, originChecker([]string{"https://b.example"})(r))
}
