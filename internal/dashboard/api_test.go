package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtdash/virtdash/internal/db"
	"github.com/virtdash/virtdash/internal/models"
	testutil "github.com/virtdash/virtdash/internal/testing"
	"github.com/virtdash/virtdash/internal/vault"
	"github.com/virtdash/virtdash/internal/virtfusion"
)

type apiFixture struct {
	fake   *virtfusion.FakeClient
	api    *API
	server *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	fake := virtfusion.NewFakeClient()

	store, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	passwordVault, err := vault.New(store, []byte(identity.String()+"\n"), time.Hour)
	require.NoError(t, err)

	cache := NewCache(CacheTTLs{
		Server:    10 * time.Second,
		VNC:       5 * time.Minute,
		Traffic:   time.Minute,
		Templates: 10 * time.Minute,
		Branding:  10 * time.Minute,
	}, nil)
	poller := &Poller{Client: fake, Cache: cache}
	dispatcher := NewDispatcher(fake, poller, store, nil, nil, testTiming)
	t.Cleanup(dispatcher.Close)
	scheduler := NewScheduler(poller, nil, nil, time.Second, 2*time.Minute)

	api := NewAPI(poller, dispatcher, scheduler, passwordVault, nil)
	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)

	return &apiFixture{fake: fake, api: api, server: server}
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func (f *apiFixture) post(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func TestGetServer(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42, testutil.WithGuestAgent("Ubuntu 22.04")))

	resp, body := f.get(t, "/v1/servers/42")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed V1ServerResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "test-server", parsed.Server.Name)
	assert.Equal(t, models.StateRunning, parsed.DisplayState)
	assert.Equal(t, "Ubuntu 22.04", parsed.OS.Name)
	assert.Equal(t, "ubuntu", string(parsed.OS.Icon))

	// Viewing a server puts it on the background poll list.
	assert.Equal(t, []int{42}, f.api.scheduler.Watched())
}

func TestGetServerUsesCache(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(1))

	f.get(t, "/v1/servers/1")
	f.get(t, "/v1/servers/1")
	assert.Equal(t, 1, f.fake.FetchCalls(1))
}

func TestGetServerNotFound(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.get(t, "/v1/servers/99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetServerBadID(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.get(t, "/v1/servers/banana")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPowerAction(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42, testutil.WithState("stopped")))

	resp, body := f.post(t, "/v1/servers/42/power/boot")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed V1PowerResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.True(t, parsed.Accepted)
	assert.False(t, parsed.Pending)
	assert.NotEmpty(t, parsed.CorrelationID)
}

func TestPowerActionUnknownAction(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42))

	resp, _ := f.post(t, "/v1/servers/42/power/explode")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.fake.PowerCalls())
}

func TestPowerActionQueued(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42))
	f.fake.QueueNextPower = true

	resp, body := f.post(t, "/v1/servers/42/power/restart")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var parsed V1PowerResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.True(t, parsed.Accepted)
	assert.True(t, parsed.Pending)
}

func TestPowerActionRejected(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42))
	f.fake.FailNextPower = "server is suspended"

	resp, body := f.post(t, "/v1/servers/42/power/shutdown")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var parsed V1PowerResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.False(t, parsed.Accepted)
	assert.Equal(t, "server is suspended", parsed.Message)
}

func TestPowerActionRequiresPost(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42))

	resp, _ := f.get(t, "/v1/servers/42/power/boot")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestGetVNC(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42))
	f.fake.SetVNC(42, models.VncStatus{Enabled: true, IP: "10.0.0.5", Port: 5901})

	resp, body := f.get(t, "/v1/servers/42/vnc")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed models.VncStatus
	require.NoError(t, json.Unmarshal(body, &parsed))
	testutil.AssertJSONEqual(t, models.VncStatus{Enabled: true, IP: "10.0.0.5", Port: 5901}, parsed)
}

func TestGetTraffic(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42))
	f.fake.SetTraffic(42, []models.TrafficPeriod{
		{Month: "2026-06", RxBytes: 100, TxBytes: 50, TotalBytes: 150},
		{Month: "2026-07", RxBytes: 10, TxBytes: 5, TotalBytes: 15},
	})

	resp, body := f.get(t, "/v1/servers/42/traffic")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed []models.TrafficPeriod
	require.NoError(t, json.Unmarshal(body, &parsed))
	require.Len(t, parsed, 2)
	assert.Equal(t, "2026-06", parsed[0].Month)
}

func TestPasswordResetAndReadBack(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42))

	resp, body := f.post(t, "/v1/servers/42/password/reset")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reset V1PasswordResponse
	require.NoError(t, json.Unmarshal(body, &reset))
	assert.NotEmpty(t, reset.Password)
	assert.True(t, reset.ExpiresAt.After(time.Now()))

	resp, body = f.get(t, "/v1/servers/42/password")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var read V1PasswordResponse
	require.NoError(t, json.Unmarshal(body, &read))
	assert.Equal(t, reset.Password, read.Password)
}

func TestPasswordMissing(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.get(t, "/v1/servers/42/password")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActionsAudit(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42, testutil.WithState("stopped")))

	f.post(t, "/v1/servers/42/power/boot")
	f.fake.FailNextPower = "busy"
	f.post(t, "/v1/servers/42/power/restart")

	resp, body := f.get(t, "/v1/servers/42/actions")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed V1ActionsResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, 42, parsed.ServerID)
	require.Len(t, parsed.Actions, 2)
	assert.Equal(t, "restart", parsed.Actions[0].Action)
	assert.Equal(t, db.PowerResultFailed, parsed.Actions[0].Result)
	assert.Equal(t, "boot", parsed.Actions[1].Action)
}

func TestTemplatesEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.SetTemplates([]models.OSTemplate{
		testutil.NewTestTemplate(1, "Ubuntu", "22.04"),
		testutil.NewTestTemplate(2, "Debian", "12"),
	})

	resp, body := f.get(t, "/v1/templates")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed V1TemplatesResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Len(t, parsed.Templates, 2)
}

func TestBrandingEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.SetBranding(models.Branding{Name: "Acme Cloud", PrimaryColor: "#336699"})

	resp, body := f.get(t, "/v1/branding")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed models.Branding
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "Acme Cloud", parsed.Name)
}

func TestStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.AddServer(testutil.NewTestSnapshot(42))
	f.get(t, "/v1/servers/42")

	resp, body := f.get(t, "/v1/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed V1StatusResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, []int{42}, parsed.WatchedServers)
	assert.Equal(t, 1, parsed.CacheEntries[categoryServer])
	assert.NotEmpty(t, parsed.Version)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownServerResource(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.get(t, "/v1/servers/42/snapshots")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
