package dashboard

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/virtdash/virtdash/internal/models"
	"github.com/virtdash/virtdash/internal/oslabel"
	"github.com/virtdash/virtdash/internal/virtfusion"
)

// Metric category labels.
const (
	categoryServer    = "server"
	categoryVNC       = "vnc"
	categoryTraffic   = "traffic"
	categoryTemplates = "templates"
	categoryBranding  = "branding"
)

// Poller answers reads against the cache and refreshes entries from the
// control plane when they are missing or stale. Each category keeps its
// own staleness window; a hit never blocks on the network.
type Poller struct {
	Client  virtfusion.Client
	Cache   *Cache
	Metrics *Metrics
	Logger  *log.Logger
}

// Server returns the snapshot for a server, from cache when fresh.
func (p *Poller) Server(ctx context.Context, id int) (models.ServerSnapshot, error) {
	if snap, ok := p.Cache.Servers.get(id); ok {
		p.Metrics.CacheRequest(categoryServer, "hit")
		return snap, nil
	}
	p.Metrics.CacheRequest(categoryServer, "miss")
	return p.RefreshServer(ctx, id)
}

// RefreshServer fetches a snapshot unconditionally and installs it,
// unless a fetch that began later has already landed.
func (p *Poller) RefreshServer(ctx context.Context, id int) (models.ServerSnapshot, error) {
	seq := p.Cache.Servers.begin()
	started := time.Now()
	snap, err := p.Client.FetchServer(ctx, id)
	p.Metrics.ObserveRefresh(categoryServer, time.Since(started))
	if err != nil {
		if errors.Is(err, virtfusion.ErrServerNotFound) {
			p.Cache.Servers.invalidate(id)
		}
		return models.ServerSnapshot{}, err
	}
	snap.FetchedAt = time.Now().UTC()
	if !p.Cache.Servers.put(id, seq, snap) {
		// A later fetch won the race; serve its result instead.
		if current, ok := p.Cache.Servers.get(id); ok {
			return current, nil
		}
	}
	return snap, nil
}

// VNC returns the console descriptor for a server. The long TTL is
// deliberate: the vendor endpoint has side effects, so it is hit as
// rarely as possible.
func (p *Poller) VNC(ctx context.Context, id int) (models.VncStatus, error) {
	if vnc, ok := p.Cache.VNC.get(id); ok {
		p.Metrics.CacheRequest(categoryVNC, "hit")
		return vnc, nil
	}
	p.Metrics.CacheRequest(categoryVNC, "miss")
	seq := p.Cache.VNC.begin()
	started := time.Now()
	vnc, err := p.Client.FetchVNC(ctx, id)
	p.Metrics.ObserveRefresh(categoryVNC, time.Since(started))
	if err != nil {
		return models.VncStatus{}, err
	}
	p.Cache.VNC.put(id, seq, vnc)
	return vnc, nil
}

// Traffic returns the monthly traffic periods for a server.
func (p *Poller) Traffic(ctx context.Context, id int) ([]models.TrafficPeriod, error) {
	if periods, ok := p.Cache.Traffic.get(id); ok {
		p.Metrics.CacheRequest(categoryTraffic, "hit")
		return periods, nil
	}
	p.Metrics.CacheRequest(categoryTraffic, "miss")
	seq := p.Cache.Traffic.begin()
	started := time.Now()
	periods, err := p.Client.FetchTraffic(ctx, id)
	p.Metrics.ObserveRefresh(categoryTraffic, time.Since(started))
	if err != nil {
		return nil, err
	}
	p.Cache.Traffic.put(id, seq, periods)
	return periods, nil
}

// Templates returns the OS template catalog.
func (p *Poller) Templates(ctx context.Context) ([]models.OSTemplate, error) {
	if templates, ok := p.Cache.Templates.get(globalKey); ok {
		p.Metrics.CacheRequest(categoryTemplates, "hit")
		return templates, nil
	}
	p.Metrics.CacheRequest(categoryTemplates, "miss")
	seq := p.Cache.Templates.begin()
	started := time.Now()
	templates, err := p.Client.ListTemplates(ctx)
	p.Metrics.ObserveRefresh(categoryTemplates, time.Since(started))
	if err != nil {
		return nil, err
	}
	p.Cache.Templates.put(globalKey, seq, templates)
	return templates, nil
}

// Branding returns theming values.
func (p *Poller) Branding(ctx context.Context) (models.Branding, error) {
	if branding, ok := p.Cache.Branding.get(globalKey); ok {
		p.Metrics.CacheRequest(categoryBranding, "hit")
		return branding, nil
	}
	p.Metrics.CacheRequest(categoryBranding, "miss")
	seq := p.Cache.Branding.begin()
	started := time.Now()
	branding, err := p.Client.FetchBranding(ctx)
	p.Metrics.ObserveRefresh(categoryBranding, time.Since(started))
	if err != nil {
		return models.Branding{}, err
	}
	p.Cache.Branding.put(globalKey, seq, branding)
	return branding, nil
}

// OSInfo resolves the display OS label for a snapshot. The bulk catalog
// is consulted first; when it lacks the server's template, a pinned
// single-record lookup fills the gap. Resolution never fails: catalog
// errors degrade to the lower-priority sources.
func (p *Poller) OSInfo(ctx context.Context, snap models.ServerSnapshot) oslabel.Info {
	catalog := oslabel.Catalog{}
	templates, err := p.Templates(ctx)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Printf("oslabel: template catalog unavailable: %v", err)
		}
	} else {
		catalog.Templates = templates
	}
	if pinned, ok := p.pinnedTemplate(ctx, snap, catalog.Templates); ok {
		catalog.Pinned = &pinned
	}
	return oslabel.Resolve(snap, catalog)
}

// pinnedTemplate fetches the server's template record individually when
// the bulk catalog does not contain it.
func (p *Poller) pinnedTemplate(ctx context.Context, snap models.ServerSnapshot, templates []models.OSTemplate) (models.OSTemplate, bool) {
	id := snap.TemplateID
	if id == 0 {
		id = snap.OSID
	}
	if id == 0 {
		return models.OSTemplate{}, false
	}
	for _, t := range templates {
		if t.ID == id {
			return models.OSTemplate{}, false
		}
	}
	if pinned, ok := p.Cache.Pinned.get(int(id)); ok {
		return pinned, true
	}
	seq := p.Cache.Pinned.begin()
	pinned, err := p.Client.FetchTemplate(ctx, int(id))
	if err != nil {
		return models.OSTemplate{}, false
	}
	p.Cache.Pinned.put(int(id), seq, pinned)
	return pinned, true
}
