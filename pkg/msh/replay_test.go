package msh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sebplorenz/DataspaceConnector/pkg/message"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestGuard(window time.Duration) (*ReplayGuard, *manualClock) {
	clock := &manualClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := NewReplayGuard(window)
	g.now = clock.now
	return g, clock
}

func TestReplayGuard_Seen(t *testing.T) {
	g, clock := newTestGuard(time.Minute)

	assert.False(t, g.Seen("msg-1"))
	assert.True(t, g.Seen("msg-1"))
	assert.False(t, g.Seen("msg-2"))

	clock.advance(time.Minute)
	assert.False(t, g.Seen("msg-1"), "id outside the window is accepted again")
	assert.True(t, g.Seen("msg-1"))
}

func TestReplayGuard_Prune(t *testing.T) {
	g, clock := newTestGuard(time.Minute)

	g.Seen("old")
	clock.advance(30 * time.Second)
	g.Seen("new")
	clock.advance(30 * time.Second)

	g.Prune()
	assert.Equal(t, 1, g.Len())
	assert.True(t, g.Seen("new"))
}

func TestReplayGuard_Concurrent(t *testing.T) {
	g := NewReplayGuard(time.Hour)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !g.Seen("msg-1") {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
}

func TestReplayGuard_RunStopsWithContext(t *testing.T) {
	g := NewReplayGuard(time.Nanosecond)
	for i := 0; i < 10; i++ {
		g.Seen(fmt.Sprintf("msg-%d", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return g.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestDispatcher_RejectsReplayedMessage(t *testing.T) {
	b := message.NewBuilder()
	d := NewDispatcher(DispatcherConfig{Replays: NewReplayGuard(time.Hour)})
	d.Register(message.TypeNotification, echoHandler(b))
	ctx := message.WithIdentity(context.Background(), message.Identity{ConnectorID: "https://provider.example.org", ModelVersion: "4.0.0"})

	first := d.Dispatch(ctx, inbound(message.TypeNotification, "4.0.0"))
	assert.Equal(t, message.TypeMessageProcessed, first.Header.Type)

	second := d.Dispatch(ctx, inbound(message.TypeNotification, "4.0.0"))
	assert.Equal(t, message.TypeRejection, second.Header.Type)
	assert.Equal(t, message.RejectionBadParameters, second.Header.RejectionReason)
	assert.Equal(t, "urn:message:inbound-1", second.Header.CorrelationMessage)
}
