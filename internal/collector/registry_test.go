package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubCollector struct {
	name      string
	data      interface{}
	err       error
	delay     time.Duration
	available bool
}

func (s *stubCollector) Name() string      { return s.name }
func (s *stubCollector) IsAvailable() bool { return s.available }

func (s *stubCollector) Collect(ctx context.Context) (interface{}, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.data, s.err
}

func TestRegistry_FailureDoesNotBlockOthers(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(&stubCollector{name: NameContainers, err: errors.New("daemon down"), available: true})
	r.Register(&stubCollector{name: NameHost, data: "ok", available: true})

	results := r.CollectAll(context.Background())
	assert.Equal(t, map[string]interface{}{NameHost: "ok"}, results)
}

func TestRegistry_RunsConcurrently(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(&stubCollector{name: "a", data: 1, delay: 50 * time.Millisecond, available: true})
	r.Register(&stubCollector{name: "b", data: 2, delay: 50 * time.Millisecond, available: true})

	start := time.Now()
	results := r.CollectAll(context.Background())
	assert.Len(t, results, 2)
	assert.Less(t, time.Since(start), 95*time.Millisecond)
}

func TestRegistry_SkipsUnavailable(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(&stubCollector{name: "a", available: false})
	assert.Empty(t, r.Collectors())
}
