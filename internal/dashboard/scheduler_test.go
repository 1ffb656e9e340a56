package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtdash/virtdash/internal/models"
	"github.com/virtdash/virtdash/internal/virtfusion"
)

func newTestScheduler(fake *virtfusion.FakeClient) *Scheduler {
	cache := NewCache(CacheTTLs{Server: time.Minute}, nil)
	poller := &Poller{Client: fake, Cache: cache}
	return NewScheduler(poller, nil, nil, time.Second, 2*time.Minute)
}

func TestTickRefreshesWatchedServers(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(models.ServerSnapshot{ID: 1, State: "running"})
	fake.AddServer(models.ServerSnapshot{ID: 2, State: "stopped"})
	scheduler := newTestScheduler(fake)

	scheduler.Watch(1)
	scheduler.Watch(2)
	scheduler.tick(context.Background())

	assert.Equal(t, 1, fake.FetchCalls(1))
	assert.Equal(t, 1, fake.FetchCalls(2))

	// Unwatched servers are left alone.
	fake.AddServer(models.ServerSnapshot{ID: 3})
	scheduler.tick(context.Background())
	assert.Equal(t, 0, fake.FetchCalls(3))
	assert.Equal(t, 2, fake.FetchCalls(1))
}

func TestWatchExpiresAfterWindow(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(models.ServerSnapshot{ID: 1, State: "running"})
	scheduler := newTestScheduler(fake)

	clock := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return clock }

	scheduler.Watch(1)
	scheduler.tick(context.Background())
	require.Equal(t, 1, fake.FetchCalls(1))

	// Inside the window the server keeps polling.
	clock = clock.Add(time.Minute)
	scheduler.tick(context.Background())
	assert.Equal(t, 2, fake.FetchCalls(1))

	// Past the window it drops out silently.
	clock = clock.Add(2 * time.Minute)
	scheduler.tick(context.Background())
	assert.Equal(t, 2, fake.FetchCalls(1))
	assert.Empty(t, scheduler.Watched())

	// A fresh view restarts the window.
	scheduler.Watch(1)
	scheduler.tick(context.Background())
	assert.Equal(t, 3, fake.FetchCalls(1))
}

func TestWatchExtendsWindow(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(models.ServerSnapshot{ID: 1})
	scheduler := newTestScheduler(fake)

	clock := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return clock }

	scheduler.Watch(1)
	clock = clock.Add(90 * time.Second)
	scheduler.Watch(1)
	clock = clock.Add(90 * time.Second)

	// Three minutes after the first watch, but only 90s after the
	// second: still inside the window.
	scheduler.tick(context.Background())
	assert.Equal(t, []int{1}, scheduler.Watched())
}

func TestUnwatch(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(models.ServerSnapshot{ID: 4})
	scheduler := newTestScheduler(fake)

	scheduler.Watch(4)
	scheduler.Unwatch(4)
	scheduler.tick(context.Background())
	assert.Equal(t, 0, fake.FetchCalls(4))
}

func TestPollErrorsDoNotUnwatch(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	scheduler := newTestScheduler(fake)

	// Server 8 does not exist in the control plane; polling it fails
	// but it stays watched until the window expires.
	scheduler.Watch(8)
	scheduler.tick(context.Background())
	scheduler.tick(context.Background())
	assert.Equal(t, []int{8}, scheduler.Watched())
}
