package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-app/dockdash/internal/broadcast"
	"github.com/vitalis-app/dockdash/internal/collector"
	"github.com/vitalis-app/dockdash/internal/history"
	"github.com/vitalis-app/dockdash/internal/models"
)

type fakeCollector struct {
	name  string
	calls atomic.Int64
	fn    func(n int64) (interface{}, error)
}

func (f *fakeCollector) Name() string      { return f.name }
func (f *fakeCollector) IsAvailable() bool { return true }

func (f *fakeCollector) Collect(ctx context.Context) (interface{}, error) {
	return f.fn(f.calls.Add(1))
}

func hostCollector() *fakeCollector {
	return &fakeCollector{name: collector.NameHost, fn: func(n int64) (interface{}, error) {
		return models.HostMetrics{Timestamp: n}, nil
	}}
}

func containerCollector(err error) *fakeCollector {
	return &fakeCollector{name: collector.NameContainers, fn: func(int64) (interface{}, error) {
		if err != nil {
			return nil, err
		}
		return []models.ContainerSnapshot{{ID: "abc123def456", Name: "web", State: models.StateRunning}}, nil
	}}
}

func newScheduler(t *testing.T, store *history.Store, collectors ...collector.Collector) (*Scheduler, *broadcast.Hub) {
	t.Helper()
	cfg := Config{Interval: time.Hour, FlushInterval: 2 * time.Hour, RoundTimeout: time.Second}
	return newSchedulerWithConfig(t, store, cfg, collectors...)
}

func newSchedulerWithConfig(t *testing.T, store *history.Store, cfg Config, collectors ...collector.Collector) (*Scheduler, *broadcast.Hub) {
	t.Helper()
	reg := collector.NewRegistry(nil, nil)
	for _, c := range collectors {
		reg.Register(c)
	}
	hub := broadcast.NewHub(32, nil, nil)
	return New(reg, store, hub, cfg, nil, nil), hub
}

func next(t *testing.T, sub *broadcast.Subscriber) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	select {
	case data := <-sub.Messages():
		require.NoError(t, json.Unmarshal(data, &msg))
	default:
		t.Fatal("no message queued")
	}
	return msg.Event, msg.Data
}

func hostTimestamps(t *testing.T, data json.RawMessage) []int64 {
	t.Helper()
	var records []models.HostMetrics
	require.NoError(t, json.Unmarshal(data, &records))
	ts := make([]int64, 0, len(records))
	for _, r := range records {
		ts = append(ts, r.Timestamp)
	}
	return ts
}

func drain(sub *broadcast.Subscriber) []string {
	var events []string
	for {
		select {
		case data := <-sub.Messages():
			var msg broadcast.Message
			if err := json.Unmarshal(data, &msg); err == nil {
				events = append(events, msg.Event)
			}
		default:
			return events
		}
	}
}

func TestTick_AppendsHostAndPublishesBoth(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	s, hub := newScheduler(t, store, containerCollector(nil), hostCollector())

	sub := hub.NewSubscriber()
	hub.Attach(sub)
	drain(sub)

	s.tick(context.Background())

	assert.ElementsMatch(t, []string{models.EventContainers, models.EventSystemStats}, drain(sub))
	assert.Equal(t, 1, store.Len(), "only the tick round is recorded")
}

func TestTick_ContainerFailureDoesNotBlockHost(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	s, hub := newScheduler(t, store, containerCollector(errors.New("daemon down")), hostCollector())

	sub := hub.NewSubscriber()
	hub.Attach(sub)
	drain(sub)

	s.tick(context.Background())

	assert.Equal(t, []string{models.EventSystemStats}, drain(sub))
	assert.Equal(t, 1, store.Len())
}

func TestTick_ContainersResumeWhenDaemonReturns(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	flaky := &fakeCollector{name: collector.NameContainers, fn: func(n int64) (interface{}, error) {
		if n == 1 {
			return nil, errors.New("Cannot connect to the Docker daemon")
		}
		return []models.ContainerSnapshot{{ID: "abc123def456", Name: "web", State: models.StateRunning}}, nil
	}}
	s, hub := newScheduler(t, store, flaky, hostCollector())

	sub := hub.NewSubscriber()
	hub.Attach(sub)
	assert.Equal(t, []string{models.EventInitHistory, models.EventSystemStats}, drain(sub))

	s.tick(context.Background())
	assert.ElementsMatch(t, []string{models.EventContainers, models.EventSystemStats}, drain(sub))
	assert.Equal(t, int64(2), flaky.calls.Load())
}

func TestTick_HostFailureSkipsAppend(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	failingHost := &fakeCollector{name: collector.NameHost, fn: func(int64) (interface{}, error) {
		return nil, errors.New("no /proc")
	}}
	s, hub := newScheduler(t, store, containerCollector(nil), failingHost)

	sub := hub.NewSubscriber()
	hub.Attach(sub)
	drain(sub)

	s.tick(context.Background())

	assert.Equal(t, []string{models.EventContainers}, drain(sub))
	assert.Zero(t, store.Len())
}

func TestBootstrap_HistoryPrecedesSystemStats(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	store.Append(models.HostMetrics{Timestamp: 1})
	store.Append(models.HostMetrics{Timestamp: 2})
	_, hub := newScheduler(t, store, containerCollector(nil), hostCollector())

	sub := hub.NewSubscriber()
	hub.Attach(sub)

	event, data := next(t, sub)
	require.Equal(t, models.EventInitHistory, event)
	var records []models.HostMetrics
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Equal(t, store.All(), records)
	assert.Equal(t, []int64{1, 2}, hostTimestamps(t, data))

	assert.ElementsMatch(t, []string{models.EventContainers, models.EventSystemStats}, drain(sub))
	assert.Equal(t, 2, store.Len(), "bootstrap round is not appended")
}

func TestBootstrap_WaitsForRunningTick(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	gate := make(chan struct{})
	entered := make(chan struct{})
	host := &fakeCollector{name: collector.NameHost, fn: func(n int64) (interface{}, error) {
		if n == 1 {
			close(entered)
			<-gate
		}
		return models.HostMetrics{Timestamp: n}, nil
	}}
	s, hub := newScheduler(t, store, host)

	tickDone := make(chan struct{})
	go func() {
		s.tick(context.Background())
		close(tickDone)
	}()
	<-entered

	sub := hub.NewSubscriber()
	attached := make(chan struct{})
	go func() {
		hub.Attach(sub)
		close(attached)
	}()

	// Let the subscriber connect while the tick is still collecting.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	<-tickDone
	<-attached

	event, data := next(t, sub)
	require.Equal(t, models.EventInitHistory, event)
	assert.Equal(t, []int64{1}, hostTimestamps(t, data), "history includes the in-flight tick record")

	event, data = next(t, sub)
	require.Equal(t, models.EventSystemStats, event)
	var fresh models.HostMetrics
	require.NoError(t, json.Unmarshal(data, &fresh))
	assert.Equal(t, int64(2), fresh.Timestamp)

	assert.Empty(t, drain(sub), "the tick broadcast is not delivered on top of history")
	assert.Equal(t, 1, hub.Count())
}

func TestBootstrap_CoalescesRoundsBetweenTicks(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	host := hostCollector()
	s, hub := newScheduler(t, store, host)

	first := hub.NewSubscriber()
	hub.Attach(first)
	second := hub.NewSubscriber()
	hub.Attach(second)

	assert.Equal(t, int64(1), host.calls.Load(), "a connection burst shares one round")
	assert.Equal(t, drain(first), drain(second))

	s.tick(context.Background())
	assert.Equal(t, int64(2), host.calls.Load())
	drain(first)
	drain(second)

	third := hub.NewSubscriber()
	hub.Attach(third)
	assert.Equal(t, int64(3), host.calls.Load(), "a tick invalidates the shared round")
	assert.Equal(t, []string{models.EventInitHistory, models.EventSystemStats}, drain(third))
}

func TestBootstrap_SendsOnlyToNewSubscriber(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	_, hub := newScheduler(t, store, containerCollector(nil), hostCollector())

	existing := hub.NewSubscriber()
	hub.Attach(existing)
	drain(existing)

	hub.Attach(hub.NewSubscriber())
	assert.Empty(t, drain(existing))
}

func TestBootstrap_EmptyHistoryIsArray(t *testing.T) {
	store := history.New(10, nil, nil, nil)
	_, hub := newScheduler(t, store, hostCollector())

	sub := hub.NewSubscriber()
	hub.Attach(sub)

	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-sub.Messages(), &msg))
	assert.Equal(t, models.EventInitHistory, msg.Event)
	assert.JSONEq(t, `[]`, string(msg.Data))
}

func TestCollect_RoundsDoNotOverlap(t *testing.T) {
	var inFlight, peak atomic.Int64
	slow := &fakeCollector{name: collector.NameHost, fn: func(n int64) (interface{}, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return models.HostMetrics{Timestamp: n}, nil
	}}
	s, _ := newScheduler(t, history.New(10, nil, nil, nil), slow)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			s.Collect(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, int64(1), peak.Load())
}

func TestStart_FlushesPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := history.New(10, history.NewFilePersister(path), nil, nil)
	cfg := Config{Interval: 10 * time.Millisecond, FlushInterval: 40 * time.Millisecond, RoundTimeout: time.Second}
	s, _ := newSchedulerWithConfig(t, store, cfg, hostCollector())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Checked before cancellation, so only the flush ticker can have written.
	require.Eventually(t, func() bool {
		reloaded := history.New(10, history.NewFilePersister(path), nil, nil)
		reloaded.Load(context.Background())
		return reloaded.Len() > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStart_FlushesOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := history.New(10, history.NewFilePersister(path), nil, nil)
	s, _ := newScheduler(t, store, hostCollector())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	reloaded := history.New(10, history.NewFilePersister(path), nil, nil)
	reloaded.Load(context.Background())
	assert.Equal(t, store.All(), reloaded.All())
}
