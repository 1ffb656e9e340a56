package dashboard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/virtdash/virtdash/internal/db"
	"github.com/virtdash/virtdash/internal/models"
	"github.com/virtdash/virtdash/internal/virtfusion"
)

// ConvergeTiming bounds the post-action snapshot polling.
type ConvergeTiming struct {
	// Delay before the second refetch; the first happens immediately.
	Delay time.Duration
	// Interval between subsequent refetches.
	Interval time.Duration
	// Window caps total convergence polling per action.
	Window time.Duration
}

// Dispatcher sends power actions to the control plane and drives the
// bounded convergence polling that follows an accepted action.
//
// Dispatching an action never blocks on convergence: the refetch loop
// runs in a goroutine scoped to a per-server context. A new action on
// the same server cancels the previous loop, so at most one convergence
// window is open per server.
type Dispatcher struct {
	Client  virtfusion.Client
	Poller  *Poller
	Store   *db.Store
	Metrics *Metrics
	Logger  *log.Logger
	Timing  ConvergeTiming

	mu      sync.Mutex
	cancels map[int]*convergeHandle
	wg      sync.WaitGroup
}

type convergeHandle struct {
	cancel context.CancelFunc
}

// DispatchResult is what a dispatch reports back to the caller.
type DispatchResult struct {
	Outcome       models.PowerOutcome
	CorrelationID string
}

// NewDispatcher builds a dispatcher with the given collaborators.
func NewDispatcher(client virtfusion.Client, poller *Poller, store *db.Store, metrics *Metrics, logger *log.Logger, timing ConvergeTiming) *Dispatcher {
	return &Dispatcher{
		Client:  client,
		Poller:  poller,
		Store:   store,
		Metrics: metrics,
		Logger:  logger,
		Timing:  timing,
		cancels: make(map[int]*convergeHandle),
	}
}

// Dispatch sends one power action, audits the classified outcome, and
// starts convergence polling when the control plane accepted it. The
// ctx only covers the dispatch itself; convergence outlives it.
func (d *Dispatcher) Dispatch(ctx context.Context, serverID int, action models.PowerAction) (DispatchResult, error) {
	correlationID := uuid.NewString()
	outcome, err := d.Client.PowerAction(ctx, serverID, action)
	if err != nil {
		d.audit(serverID, action, db.PowerResultError, err.Error(), correlationID)
		d.Metrics.PowerAction(string(action), db.PowerResultError)
		return DispatchResult{CorrelationID: correlationID}, fmt.Errorf("dispatch %s for server %d: %w", action, serverID, err)
	}

	result := db.PowerResultFailed
	switch {
	case outcome.Success && outcome.Pending:
		result = db.PowerResultQueued
	case outcome.Success:
		result = db.PowerResultSuccess
	}
	d.audit(serverID, action, result, outcome.Message, correlationID)
	d.Metrics.PowerAction(string(action), result)

	if outcome.Success {
		d.startConvergence(serverID, correlationID)
	}
	return DispatchResult{Outcome: outcome, CorrelationID: correlationID}, nil
}

// startConvergence begins a refetch loop for one server, replacing any
// loop already running for it.
func (d *Dispatcher) startConvergence(serverID int, correlationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.Timing.Window)
	handle := &convergeHandle{cancel: cancel}

	d.mu.Lock()
	if prev, ok := d.cancels[serverID]; ok {
		prev.cancel()
	}
	d.cancels[serverID] = handle
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer d.clearHandle(serverID, handle)
		d.converge(ctx, serverID, correlationID)
	}()
}

// converge refetches the snapshot immediately, once after a short
// delay, then on a fixed interval until the window closes. The control
// plane is eventually consistent after a power action, so each refetch
// simply replaces the snapshot; there is no success condition to detect.
func (d *Dispatcher) converge(ctx context.Context, serverID int, correlationID string) {
	refetch := func() {
		d.Metrics.ConvergencePoll()
		if _, err := d.Poller.RefreshServer(ctx, serverID); err != nil && ctx.Err() == nil {
			if d.Logger != nil {
				d.Logger.Printf("converge %s: refetch server %d: %v", correlationID, serverID, err)
			}
		}
	}

	refetch()

	select {
	case <-ctx.Done():
		return
	case <-time.After(d.Timing.Delay):
		refetch()
	}

	ticker := time.NewTicker(d.Timing.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refetch()
		}
	}
}

func (d *Dispatcher) clearHandle(serverID int, handle *convergeHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Only clear our own registration; a newer action may have replaced it.
	if current, ok := d.cancels[serverID]; ok && current == handle {
		delete(d.cancels, serverID)
	}
}

// Cancel stops the convergence loop for one server, if any.
func (d *Dispatcher) Cancel(serverID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handle, ok := d.cancels[serverID]; ok {
		handle.cancel()
		delete(d.cancels, serverID)
	}
}

// Close cancels all convergence loops and waits for them to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for id, handle := range d.cancels {
		handle.cancel()
		delete(d.cancels, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) audit(serverID int, action models.PowerAction, result, message, correlationID string) {
	if d.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record := db.PowerActionRecord{
		ServerID:      serverID,
		Action:        string(action),
		Result:        result,
		Message:       message,
		CorrelationID: correlationID,
	}
	if err := d.Store.RecordPowerAction(ctx, record); err != nil && d.Logger != nil {
		d.Logger.Printf("audit power action for server %d: %v", serverID, err)
	}
}
