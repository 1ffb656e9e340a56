// Deterministic in-memory control plane for tests. It implements Client
// and simulates power transitions, queued operations, and catalog lookups.
package virtfusion

import (
	"context"
	"fmt"
	"sync"

	"github.com/virtdash/virtdash/internal/models"
)

// FakeClient implements Client with in-memory state. Safe for concurrent use.
type FakeClient struct {
	mu        sync.Mutex
	servers   map[int]*fakeServer
	templates []models.OSTemplate
	pinned    map[int]models.OSTemplate
	branding  models.Branding

	// QueueNextPower makes the next PowerAction return a soft success.
	QueueNextPower bool
	// FailNextPower makes the next PowerAction return a hard failure with
	// this message.
	FailNextPower string

	fetchCalls map[int]int
	powerCalls []string
}

type fakeServer struct {
	snap        models.ServerSnapshot
	vnc         models.VncStatus
	traffic     []models.TrafficPeriod
	password    string
	passwordSeq int
}

// NewFakeClient returns a FakeClient with empty state.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		servers:    make(map[int]*fakeServer),
		pinned:     make(map[int]models.OSTemplate),
		fetchCalls: make(map[int]int),
	}
}

// AddServer seeds a server snapshot into the fake control plane.
func (f *FakeClient) AddServer(snap models.ServerSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.servers[snap.ID] = &fakeServer{snap: snap}
}

// SetVNC seeds the VNC descriptor for a server.
func (f *FakeClient) SetVNC(id int, vnc models.VncStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if srv, ok := f.servers[id]; ok {
		srv.vnc = vnc
	}
}

// SetTraffic seeds traffic periods for a server.
func (f *FakeClient) SetTraffic(id int, periods []models.TrafficPeriod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if srv, ok := f.servers[id]; ok {
		srv.traffic = periods
	}
}

// SetTemplates seeds the bulk template catalog.
func (f *FakeClient) SetTemplates(templates []models.OSTemplate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates = templates
}

// PinTemplate seeds a single-record template lookup.
func (f *FakeClient) PinTemplate(t models.OSTemplate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned[int(t.ID)] = t
}

// SetBranding seeds theming values.
func (f *FakeClient) SetBranding(b models.Branding) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branding = b
}

// FetchCalls reports how many times FetchServer was called for id.
func (f *FakeClient) FetchCalls(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[id]
}

// PowerCalls returns the dispatched "id/action" pairs in order.
func (f *FakeClient) PowerCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.powerCalls))
	copy(out, f.powerCalls)
	return out
}

func (f *FakeClient) FetchServer(_ context.Context, id int) (models.ServerSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls[id]++
	srv, ok := f.servers[id]
	if !ok {
		return models.ServerSnapshot{}, ErrServerNotFound
	}
	return srv.snap, nil
}

func (f *FakeClient) PowerAction(_ context.Context, id int, action models.PowerAction) (models.PowerOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	srv, ok := f.servers[id]
	if !ok {
		return models.PowerOutcome{Success: false, Message: "server not found"}, nil
	}
	f.powerCalls = append(f.powerCalls, fmt.Sprintf("%d/%s", id, action))

	if f.FailNextPower != "" {
		message := f.FailNextPower
		f.FailNextPower = ""
		return models.PowerOutcome{Success: false, Message: message}, nil
	}
	if f.QueueNextPower {
		f.QueueNextPower = false
		return models.PowerOutcome{Success: true, Pending: true, Message: "Operation Queued"}, nil
	}

	switch action {
	case models.ActionBoot, models.ActionRestart:
		srv.snap.PowerStatus = &models.PowerStatus{PowerState: "RUNNING"}
		srv.snap.State = "running"
	case models.ActionShutdown, models.ActionPoweroff:
		srv.snap.PowerStatus = &models.PowerStatus{PowerState: "STOPPED"}
		srv.snap.State = "stopped"
	default:
		return models.PowerOutcome{Success: false, Message: fmt.Sprintf("unknown action %q", action)}, nil
	}
	return models.PowerOutcome{Success: true}, nil
}

func (f *FakeClient) FetchVNC(_ context.Context, id int) (models.VncStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	srv, ok := f.servers[id]
	if !ok {
		return models.VncStatus{}, ErrServerNotFound
	}
	return srv.vnc, nil
}

func (f *FakeClient) FetchTraffic(_ context.Context, id int) ([]models.TrafficPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	srv, ok := f.servers[id]
	if !ok {
		return nil, ErrServerNotFound
	}
	out := make([]models.TrafficPeriod, len(srv.traffic))
	copy(out, srv.traffic)
	return out, nil
}

func (f *FakeClient) ListTemplates(_ context.Context) ([]models.OSTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.OSTemplate, len(f.templates))
	copy(out, f.templates)
	return out, nil
}

func (f *FakeClient) FetchTemplate(_ context.Context, id int) (models.OSTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.pinned[id]; ok {
		return t, nil
	}
	return models.OSTemplate{}, ErrTemplateNotFound
}

func (f *FakeClient) FetchBranding(_ context.Context) (models.Branding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branding, nil
}

func (f *FakeClient) ResetPassword(_ context.Context, id int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	srv, ok := f.servers[id]
	if !ok {
		return "", ErrServerNotFound
	}
	srv.passwordSeq++
	srv.password = fmt.Sprintf("generated-%d-%d", id, srv.passwordSeq)
	return srv.password, nil
}

var _ Client = (*FakeClient)(nil)
