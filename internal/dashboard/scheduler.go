package dashboard

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Scheduler keeps snapshots warm for servers that were recently viewed.
//
// Every read of a server through the API marks it watched; watched
// servers are refetched on the poll interval until no one has looked at
// them for the watch window, at which point they silently drop out.
// This bounds background load to servers someone actually cares about.
type Scheduler struct {
	Poller      *Poller
	Metrics     *Metrics
	Logger      *log.Logger
	Interval    time.Duration
	WatchWindow time.Duration

	// now is overridable for tests.
	now func() time.Time

	mu      sync.Mutex
	watched map[int]time.Time
}

// NewScheduler builds a scheduler; Run must be called to start polling.
func NewScheduler(poller *Poller, metrics *Metrics, logger *log.Logger, interval, watchWindow time.Duration) *Scheduler {
	return &Scheduler{
		Poller:      poller,
		Metrics:     metrics,
		Logger:      logger,
		Interval:    interval,
		WatchWindow: watchWindow,
		now:         time.Now,
		watched:     make(map[int]time.Time),
	}
}

// Watch marks a server as recently viewed, starting or extending its
// background polling window.
func (s *Scheduler) Watch(serverID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched[serverID] = s.now()
	s.Metrics.SetWatchedServers(len(s.watched))
}

// Unwatch removes a server from background polling immediately.
func (s *Scheduler) Unwatch(serverID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watched, serverID)
	s.Metrics.SetWatchedServers(len(s.watched))
}

// Watched returns the servers currently in the poll window, sorted.
func (s *Scheduler) Watched() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Run polls watched servers until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick expires stale watches and refreshes the rest. Refreshes are
// sequential; the watch set is small by construction.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []int
	for id, lastSeen := range s.watched {
		if now.Sub(lastSeen) >= s.WatchWindow {
			delete(s.watched, id)
			continue
		}
		due = append(due, id)
	}
	s.Metrics.SetWatchedServers(len(s.watched))
	s.mu.Unlock()

	sort.Ints(due)
	for _, id := range due {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Poller.RefreshServer(ctx, id); err != nil && s.Logger != nil {
			s.Logger.Printf("poll server %d: %v", id, err)
		}
	}
}
