package dashboard

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/virtdash/virtdash/internal/buildinfo"
	"github.com/virtdash/virtdash/internal/models"
	"github.com/virtdash/virtdash/internal/vault"
	"github.com/virtdash/virtdash/internal/virtfusion"
)

const defaultActionsLimit = 50

// API handles dashboard HTTP requests.
//
// Endpoints:
//   - GET  /healthz                            - Liveness probe
//   - GET  /v1/status                          - Daemon status summary
//   - GET  /v1/servers/{id}                    - Server snapshot with display state and OS label
//   - POST /v1/servers/{id}/power/{action}     - Dispatch boot/restart/shutdown/poweroff
//   - GET  /v1/servers/{id}/vnc                - VNC console descriptor
//   - GET  /v1/servers/{id}/traffic            - Monthly traffic periods
//   - POST /v1/servers/{id}/password/reset     - Generate a new root password
//   - GET  /v1/servers/{id}/password           - Read the vault-held password
//   - GET  /v1/servers/{id}/actions            - Recent power action audit records
//   - GET  /v1/templates                       - OS template catalog
//   - GET  /v1/branding                        - Theming values
type API struct {
	poller     *Poller
	dispatcher *Dispatcher
	scheduler  *Scheduler
	vault      *vault.Vault
	logger     *log.Logger

	metricsEnabled bool
	startedAt      time.Time
}

// NewAPI builds the HTTP API around its collaborators.
func NewAPI(poller *Poller, dispatcher *Dispatcher, scheduler *Scheduler, passwordVault *vault.Vault, logger *log.Logger) *API {
	if logger == nil {
		logger = log.Default()
	}
	return &API{
		poller:     poller,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		vault:      passwordVault,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// WithMetricsEnabled annotates the status response with metrics listener state.
func (api *API) WithMetricsEnabled(enabled bool) *API {
	if api == nil {
		return api
	}
	api.metricsEnabled = enabled
	return api
}

// Routes registers all handlers on a new mux.
func (api *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", api.handleHealthz)
	mux.HandleFunc("/v1/status", api.handleStatus)
	mux.HandleFunc("/v1/templates", api.handleTemplates)
	mux.HandleFunc("/v1/branding", api.handleBranding)
	mux.HandleFunc("/v1/servers/", api.handleServerByID)
	return mux
}

func (api *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (api *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	cache := api.poller.Cache
	resp := V1StatusResponse{
		Version:        buildinfo.Version,
		UptimeSeconds:  int64(time.Since(api.startedAt).Seconds()),
		WatchedServers: api.scheduler.Watched(),
		CacheEntries: map[string]int{
			categoryServer:    cache.Servers.len(),
			categoryVNC:       cache.VNC.len(),
			categoryTraffic:   cache.Traffic.len(),
			categoryTemplates: cache.Templates.len(),
			categoryBranding:  cache.Branding.len(),
		},
		MetricsEnabled: api.metricsEnabled,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (api *API) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	templates, err := api.poller.Templates(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load template catalog", err)
		return
	}
	if templates == nil {
		templates = []models.OSTemplate{}
	}
	writeJSON(w, http.StatusOK, V1TemplatesResponse{Templates: templates})
}

func (api *API) handleBranding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	branding, err := api.poller.Branding(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load branding", err)
		return
	}
	writeJSON(w, http.StatusOK, branding)
}

// handleServerByID parses /v1/servers/{id}[/subresource...] and fans out.
func (api *API) handleServerByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/servers/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "server id is required")
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "server id must be a positive integer")
		return
	}

	switch {
	case len(parts) == 1:
		api.handleServer(w, r, id)
	case len(parts) == 3 && parts[1] == "power":
		api.handlePower(w, r, id, parts[2])
	case len(parts) == 2 && parts[1] == "vnc":
		api.handleVNC(w, r, id)
	case len(parts) == 2 && parts[1] == "traffic":
		api.handleTraffic(w, r, id)
	case len(parts) == 3 && parts[1] == "password" && parts[2] == "reset":
		api.handlePasswordReset(w, r, id)
	case len(parts) == 2 && parts[1] == "password":
		api.handlePassword(w, r, id)
	case len(parts) == 2 && parts[1] == "actions":
		api.handleActions(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown server resource")
	}
}

func (api *API) handleServer(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	snap, err := api.poller.Server(r.Context(), id)
	if err != nil {
		writeServerError(w, id, err)
		return
	}
	api.scheduler.Watch(id)
	resp := V1ServerResponse{
		Server:       snap,
		DisplayState: models.ResolveState(snap),
		OS:           api.poller.OSInfo(r.Context(), snap),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (api *API) handlePower(w http.ResponseWriter, r *http.Request, id int, actionName string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	action, ok := models.ValidPowerAction(actionName)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown power action "+strconv.Quote(actionName))
		return
	}
	result, err := api.dispatcher.Dispatch(r.Context(), id, action)
	if err != nil {
		writeError(w, http.StatusBadGateway, "power action could not be delivered", err)
		return
	}
	resp := V1PowerResponse{
		Accepted:      result.Outcome.Success,
		Pending:       result.Outcome.Pending,
		Message:       result.Outcome.Message,
		QueueInfo:     result.Outcome.QueueInfo,
		CorrelationID: result.CorrelationID,
	}
	status := http.StatusOK
	if !result.Outcome.Success {
		// The control plane rejected the action; surface its message
		// verbatim with a conflict status rather than masking it.
		status = http.StatusConflict
	} else if result.Outcome.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (api *API) handleVNC(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	vnc, err := api.poller.VNC(r.Context(), id)
	if err != nil {
		writeServerError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, vnc)
}

func (api *API) handleTraffic(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	periods, err := api.poller.Traffic(r.Context(), id)
	if err != nil {
		writeServerError(w, id, err)
		return
	}
	if periods == nil {
		periods = []models.TrafficPeriod{}
	}
	writeJSON(w, http.StatusOK, periods)
}

func (api *API) handlePasswordReset(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	password, err := api.dispatcher.Client.ResetPassword(r.Context(), id)
	if err != nil {
		writeServerError(w, id, err)
		return
	}
	expires, err := api.vault.Put(r.Context(), id, password)
	if err != nil {
		// The reset already happened; losing the vault copy must not
		// swallow the one chance to show the password.
		api.logger.Printf("vault store for server %d: %v", id, err)
		writeJSON(w, http.StatusOK, V1PasswordResponse{Password: password, CreatedAt: time.Now().UTC()})
		return
	}
	writeJSON(w, http.StatusOK, V1PasswordResponse{
		Password:  password,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expires,
	})
}

func (api *API) handlePassword(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	entry, err := api.vault.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no stored password for this server")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read password vault", err)
		return
	}
	writeJSON(w, http.StatusOK, V1PasswordResponse{
		Password:  entry.Password,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	})
}

func (api *API) handleActions(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	limit := defaultActionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := api.dispatcher.Store.ListPowerActions(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load power actions", err)
		return
	}
	resp := V1ActionsResponse{ServerID: id, Actions: make([]V1PowerActionRecord, 0, len(records))}
	for _, record := range records {
		resp.Actions = append(resp.Actions, V1PowerActionRecord{
			Timestamp:     record.Timestamp,
			Action:        record.Action,
			Result:        record.Result,
			Message:       record.Message,
			CorrelationID: record.CorrelationID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServerError maps control plane client errors onto HTTP statuses.
func writeServerError(w http.ResponseWriter, id int, err error) {
	switch {
	case errors.Is(err, virtfusion.ErrServerNotFound):
		writeError(w, http.StatusNotFound, "server "+strconv.Itoa(id)+" not found")
	case virtfusion.ErrorStatus(err) == http.StatusForbidden:
		writeError(w, http.StatusForbidden, "control plane denied access", err)
	default:
		writeError(w, http.StatusBadGateway, "control plane request failed", err)
	}
}
