package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	failing atomic.Bool
}

func (f *fakePinger) HealthPing(ctx context.Context) error {
	if f.failing.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestMonitorTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &fakePinger{}
	b := &fakePinger{}
	m := NewMonitor(zerolog.Nop(), NewCheck("msglog", a), NewCheck("store", b))
	go func() { _ = m.Run(ctx, 10*time.Millisecond) }()

	waitTrue(t, m.Healthy)

	b.failing.Store(true)
	waitTrue(t, func() bool { return !m.Healthy() })
	assert.True(t, m.Status()["msglog"])
	assert.False(t, m.Status()["store"])

	b.failing.Store(false)
	waitTrue(t, m.Healthy)
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMonitor(zerolog.Nop(), NewCheck("msglog", &fakePinger{}))

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 10*time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitorStartsUnhealthy(t *testing.T) {
	m := NewMonitor(zerolog.Nop(), NewCheck("msglog", &fakePinger{}))
	assert.False(t, m.Healthy())
}
