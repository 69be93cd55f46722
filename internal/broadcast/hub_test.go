package broadcast

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-app/dockdash/internal/telemetry"
)

func decode(t *testing.T, data []byte) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg.Event, msg.Data
}

func TestEncode_Envelope(t *testing.T) {
	data, err := Encode("systemStats", map[string]int{"timestamp": 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"systemStats","data":{"timestamp":5}}`, string(data))
}

func TestPublish_ReachesOnlyAttachedSubscribers(t *testing.T) {
	hub := NewHub(4, nil, nil)
	attached := hub.NewSubscriber()
	pending := hub.NewSubscriber()
	hub.Attach(attached)

	require.NoError(t, hub.Publish("containers", []string{"a"}))

	require.Len(t, attached.Messages(), 1)
	assert.Empty(t, pending.Messages())

	event, data := decode(t, <-attached.Messages())
	assert.Equal(t, "containers", event)
	assert.JSONEq(t, `["a"]`, string(data))
}

func TestAttach_ConnectHandlersRunBeforeBroadcasts(t *testing.T) {
	hub := NewHub(8, nil, nil)

	var sawActive bool
	hub.OnConnect(func(s *Subscriber) {
		sawActive = hub.Count() != 0
		require.NoError(t, s.Send("initHistory", []int{}))
	})

	sub := hub.NewSubscriber()
	hub.Attach(sub)
	require.NoError(t, hub.Publish("systemStats", struct{}{}))

	assert.False(t, sawActive, "subscriber must not be active during connect handlers")
	event, _ := decode(t, <-sub.Messages())
	assert.Equal(t, "initHistory", event)
	event, _ = decode(t, <-sub.Messages())
	assert.Equal(t, "systemStats", event)
}

func TestPublish_DropsForFullQueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	hub := NewHub(1, nil, metrics)

	slow := hub.NewSubscriber()
	hub.Attach(slow)

	require.NoError(t, hub.Publish("containers", 1))
	require.NoError(t, hub.Publish("containers", 2))

	assert.Len(t, slow.Messages(), 1)
	_, data := decode(t, <-slow.Messages())
	assert.Equal(t, "1", string(data), "the oldest queued message is kept")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DroppedMessages))

	assert.NoError(t, slow.Send("x", 1))
	assert.ErrorIs(t, slow.Send("x", 2), ErrQueueFull)
}

func TestDetach_StopsDeliveryAndRunsHandlers(t *testing.T) {
	hub := NewHub(4, nil, nil)
	var disconnected []uint64
	hub.OnDisconnect(func(s *Subscriber) { disconnected = append(disconnected, s.ID()) })

	sub := hub.NewSubscriber()
	hub.Attach(sub)
	assert.Equal(t, 1, hub.Count())

	hub.Detach(sub)
	hub.Detach(sub)
	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, []uint64{sub.ID()}, disconnected)

	require.NoError(t, hub.Publish("containers", nil))
	assert.Empty(t, sub.Messages())
	assert.ErrorIs(t, sub.Send("containers", nil), ErrClosed)

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed after Detach")
	}
}

func TestAttach_AfterDetachDuringHandlers(t *testing.T) {
	hub := NewHub(4, nil, nil)
	hub.OnConnect(func(s *Subscriber) { hub.Detach(s) })

	hub.Attach(hub.NewSubscriber())
	assert.Equal(t, 0, hub.Count())
}

func TestActivate_FromConnectHandler(t *testing.T) {
	hub := NewHub(4, nil, nil)
	hub.OnConnect(func(s *Subscriber) {
		hub.Activate(s)
		require.NoError(t, hub.Publish("live", 1))
	})

	sub := hub.NewSubscriber()
	hub.Attach(sub)

	assert.Equal(t, 1, hub.Count(), "Attach does not add an active subscriber twice")
	require.Len(t, sub.Messages(), 1)
	event, _ := decode(t, <-sub.Messages())
	assert.Equal(t, "live", event)
}

func TestActivate_DetachedSubscriberStaysOut(t *testing.T) {
	hub := NewHub(4, nil, nil)
	sub := hub.NewSubscriber()
	hub.Detach(sub)

	hub.Activate(sub)
	assert.Zero(t, hub.Count())
}

func TestPublish_UnencodablePayload(t *testing.T) {
	hub := NewHub(4, nil, nil)
	assert.Error(t, hub.Publish("bad", make(chan int)))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	return decode(t, data)
}

func TestHandler_BootstrapThenBroadcast(t *testing.T) {
	hub := NewHub(8, nil, nil)
	hub.OnConnect(func(s *Subscriber) {
		_ = s.Send("initHistory", []int{1, 2})
	})
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	conn := dial(t, srv)

	event, data := readEvent(t, conn)
	assert.Equal(t, "initHistory", event)
	assert.JSONEq(t, `[1,2]`, string(data))

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish("systemStats", map[string]int{"timestamp": 9}))

	event, data = readEvent(t, conn)
	assert.Equal(t, "systemStats", event)
	assert.JSONEq(t, `{"timestamp":9}`, string(data))
}

func TestHandler_ClientCloseDetaches(t *testing.T) {
	hub := NewHub(8, nil, nil)
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHandler_HubCloseClosesConnection(t *testing.T) {
	hub := NewHub(8, nil, nil)
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
