package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtdash/virtdash/internal/models"
	testutil "github.com/virtdash/virtdash/internal/testing"
	"github.com/virtdash/virtdash/internal/virtfusion"
)

func newTestPoller(fake *virtfusion.FakeClient) *Poller {
	cache := NewCache(CacheTTLs{
		Server:    10 * time.Second,
		VNC:       5 * time.Minute,
		Traffic:   time.Minute,
		Templates: 10 * time.Minute,
		Branding:  10 * time.Minute,
	}, nil)
	return &Poller{Client: fake, Cache: cache}
}

func TestServerCachedWithinTTL(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(testutil.NewTestSnapshot(1))
	poller := newTestPoller(fake)
	ctx := context.Background()

	first, err := poller.Server(ctx, 1)
	require.NoError(t, err)
	second, err := poller.Server(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, 1, fake.FetchCalls(1))
}

func TestRefreshServerBypassesCache(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(testutil.NewTestSnapshot(1, testutil.WithState("stopped")))
	poller := newTestPoller(fake)
	ctx := context.Background()

	_, err := poller.Server(ctx, 1)
	require.NoError(t, err)

	fake.AddServer(testutil.NewTestSnapshot(1, testutil.WithState("running")))
	snap, err := poller.RefreshServer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "running", snap.State)
	assert.Equal(t, 2, fake.FetchCalls(1))

	// The refreshed value replaced the cached one wholesale.
	cached, ok := poller.Cache.Servers.get(1)
	require.True(t, ok)
	assert.Equal(t, "running", cached.State)
}

func TestServerNotFoundDropsCacheEntry(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(testutil.NewTestSnapshot(1))
	poller := newTestPoller(fake)
	ctx := context.Background()

	_, err := poller.Server(ctx, 1)
	require.NoError(t, err)

	// Server disappears from the control plane; the next refresh must
	// not leave a ghost snapshot behind.
	fake2 := virtfusion.NewFakeClient()
	poller.Client = fake2
	_, err = poller.RefreshServer(ctx, 1)
	assert.ErrorIs(t, err, virtfusion.ErrServerNotFound)

	_, ok := poller.Cache.Servers.get(1)
	assert.False(t, ok)
}

func TestVNCCachedAggressively(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(testutil.NewTestSnapshot(1))
	fake.SetVNC(1, models.VncStatus{Enabled: true, Port: 5901})
	poller := newTestPoller(fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		vnc, err := poller.VNC(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 5901, vnc.Port)
	}
}

func TestOSInfoUsesBulkCatalog(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.SetTemplates([]models.OSTemplate{testutil.NewTestTemplate(17, "Rocky Linux", "9")})
	poller := newTestPoller(fake)

	info := poller.OSInfo(context.Background(), models.ServerSnapshot{TemplateID: 17})
	assert.Equal(t, "Rocky Linux 9", info.Name)
	assert.Equal(t, "rocky", string(info.Icon))
}

func TestOSInfoPinnedFallback(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.SetTemplates([]models.OSTemplate{testutil.NewTestTemplate(1, "Ubuntu", "22.04")})
	fake.PinTemplate(testutil.NewTestTemplate(99, "AlmaLinux", "9"))
	poller := newTestPoller(fake)

	// Template 99 is missing from the bulk catalog; the single-record
	// lookup fills the gap.
	info := poller.OSInfo(context.Background(), models.ServerSnapshot{TemplateID: 99})
	assert.Equal(t, "AlmaLinux 9", info.Name)
	assert.Equal(t, "almalinux", string(info.Icon))
}

func TestOSInfoDegradesWithoutCatalog(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	poller := newTestPoller(fake)

	info := poller.OSInfo(context.Background(), models.ServerSnapshot{TemplateID: 5, OSName: "Debian 12"})
	assert.Equal(t, "Debian 12", info.Name)

	info = poller.OSInfo(context.Background(), models.ServerSnapshot{})
	assert.Equal(t, "Unknown OS", info.Name)
}

func TestTrafficCached(t *testing.T) {
	fake := virtfusion.NewFakeClient()
	fake.AddServer(testutil.NewTestSnapshot(1))
	fake.SetTraffic(1, []models.TrafficPeriod{{Month: "2026-07", TotalBytes: 42}})
	poller := newTestPoller(fake)
	ctx := context.Background()

	periods, err := poller.Traffic(ctx, 1)
	require.NoError(t, err)
	require.Len(t, periods, 1)

	// Mutating the source between cached reads changes nothing.
	fake.SetTraffic(1, nil)
	periods, err = poller.Traffic(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}
