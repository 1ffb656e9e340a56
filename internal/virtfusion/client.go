package virtfusion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/virtdash/virtdash/internal/models"
)

const maxResponseBytes = 1 << 20 // response bodies are capped at 1MB

// pendingQueueMarker is the message substring the control plane uses to
// signal a queued (not failed) power request on non-423 error responses.
// Only JSON-parsed messages are tested for it.
const pendingQueueMarker = "pending tasks in queue"

// APIClient implements Client over the VirtFusion REST API.
type APIClient struct {
	HTTPClient     *http.Client  // custom HTTP client (optional)
	BaseURL        string        // control plane base URL (e.g. "https://panel.example.com")
	APIToken       string        // bearer token for the panel API
	CommandTimeout time.Duration // per-request timeout (defaults to 30 seconds)
}

var _ Client = (*APIClient)(nil)

// envelope is the standard control plane response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// FetchServer retrieves one server snapshot.
func (c *APIClient) FetchServer(ctx context.Context, id int) (models.ServerSnapshot, error) {
	endpoint := fmt.Sprintf("/api/user/servers/%d?remoteState=true", id)
	data, err := c.getData(ctx, endpoint)
	if err != nil {
		if ErrorStatus(err) == http.StatusNotFound {
			return models.ServerSnapshot{}, fmt.Errorf("%w: %v", ErrServerNotFound, err)
		}
		return models.ServerSnapshot{}, err
	}

	var wire serverWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return models.ServerSnapshot{}, fmt.Errorf("parse server %d: %w", id, err)
	}
	snap := wire.toSnapshot()
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// PowerAction dispatches one power command and classifies the response.
func (c *APIClient) PowerAction(ctx context.Context, id int, action models.PowerAction) (models.PowerOutcome, error) {
	endpoint := fmt.Sprintf("/api/user/servers/%d/power/%s", id, action)
	status, body, err := c.do(ctx, http.MethodPost, endpoint)
	if err != nil {
		return models.PowerOutcome{}, err
	}
	return ClassifyPowerResponse(status, body), nil
}

// ClassifyPowerResponse interprets one power endpoint HTTP response.
//
// Classification, in order:
//   - 2xx with parseable JSON: success, message taken from the body
//   - 2xx otherwise: success (the control plane sometimes returns empty
//     bodies on success)
//   - 423: soft success, the request is queued behind an in-flight
//     operation
//   - any other status whose JSON error message contains "pending tasks
//     in queue": also a soft success (plain-text bodies never qualify)
//   - anything else: hard failure with the server-provided message, or a
//     generic "status N" message when the body is neither JSON nor text
func ClassifyPowerResponse(status int, body []byte) models.PowerOutcome {
	if status >= 200 && status < 300 {
		var parsed struct {
			Message   string `json:"message"`
			QueueInfo string `json:"queueInfo"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil {
			return models.PowerOutcome{Success: true, Message: parsed.Message, QueueInfo: parsed.QueueInfo}
		}
		return models.PowerOutcome{Success: true}
	}

	message, queueInfo, fromJSON := extractErrorMessage(body)
	if status == http.StatusLocked {
		if message == "" {
			message = "Operation Queued"
		}
		return models.PowerOutcome{Success: true, Pending: true, Message: message, QueueInfo: queueInfo}
	}
	if fromJSON && strings.Contains(strings.ToLower(message), pendingQueueMarker) {
		return models.PowerOutcome{Success: true, Pending: true, Message: message, QueueInfo: queueInfo}
	}
	if message == "" {
		message = fmt.Sprintf("power action failed (status %d)", status)
	}
	return models.PowerOutcome{Success: false, Message: message}
}

// extractErrorMessage pulls a human-readable message out of an error body.
// JSON "message"/"error" fields win and set fromJSON; otherwise printable
// plain text is used as-is; binary garbage yields an empty string.
func extractErrorMessage(body []byte) (message, queueInfo string, fromJSON bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", "", false
	}
	var parsed struct {
		Message   string `json:"message"`
		Error     string `json:"error"`
		QueueInfo string `json:"queueInfo"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message, parsed.QueueInfo, true
		}
		if parsed.Error != "" {
			return parsed.Error, parsed.QueueInfo, true
		}
		return "", parsed.QueueInfo, true
	}
	for _, r := range trimmed {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return "", "", false
		}
	}
	return trimmed, "", false
}

// FetchVNC retrieves the VNC capability descriptor.
// The payload is double-wrapped by the vendor: {data:{data:{vnc:{...}}}}.
func (c *APIClient) FetchVNC(ctx context.Context, id int) (models.VncStatus, error) {
	endpoint := fmt.Sprintf("/api/user/servers/%d/vnc?action=status", id)
	data, err := c.getData(ctx, endpoint)
	if err != nil {
		if ErrorStatus(err) == http.StatusNotFound {
			return models.VncStatus{}, fmt.Errorf("%w: %v", ErrServerNotFound, err)
		}
		return models.VncStatus{}, err
	}

	var wire struct {
		Data struct {
			VNC struct {
				Enabled  bool          `json:"enabled"`
				IP       string        `json:"ip"`
				Port     models.FlexID `json:"port"`
				Hostname string        `json:"hostname"`
				Password string        `json:"password"`
			} `json:"vnc"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return models.VncStatus{}, fmt.Errorf("parse vnc status for server %d: %w", id, err)
	}
	vnc := wire.Data.VNC
	return models.VncStatus{
		Enabled:  vnc.Enabled,
		IP:       vnc.IP,
		Port:     int(vnc.Port),
		Hostname: vnc.Hostname,
		Password: vnc.Password,
	}, nil
}

// trafficWire is one period in either of the two traffic wire shapes.
type trafficWire struct {
	Month string `json:"month"`
	Rx    int64  `json:"rx"`
	Tx    int64  `json:"tx"`
	Total int64  `json:"total"`
	Limit int64  `json:"limit"`
}

func (w trafficWire) toPeriod(month string) models.TrafficPeriod {
	if w.Month != "" {
		month = w.Month
	}
	total := w.Total
	if total == 0 {
		total = w.Rx + w.Tx
	}
	return models.TrafficPeriod{
		Month:      month,
		RxBytes:    w.Rx,
		TxBytes:    w.Tx,
		TotalBytes: total,
		LimitBytes: w.Limit,
	}
}

// FetchTraffic retrieves monthly traffic records.
func (c *APIClient) FetchTraffic(ctx context.Context, id int) ([]models.TrafficPeriod, error) {
	endpoint := fmt.Sprintf("/api/user/servers/%d/traffic", id)
	data, err := c.getData(ctx, endpoint)
	if err != nil {
		if ErrorStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %v", ErrServerNotFound, err)
		}
		return nil, err
	}
	periods, err := decodeTraffic(data)
	if err != nil {
		return nil, fmt.Errorf("parse traffic for server %d: %w", id, err)
	}
	return periods, nil
}

// decodeTraffic normalizes the two wire shapes (array of period objects,
// or object keyed by month) into one canonical sorted slice.
func decodeTraffic(data []byte) ([]models.TrafficPeriod, error) {
	var asArray []trafficWire
	if err := json.Unmarshal(data, &asArray); err == nil {
		periods := make([]models.TrafficPeriod, 0, len(asArray))
		for _, w := range asArray {
			periods = append(periods, w.toPeriod(""))
		}
		sortPeriods(periods)
		return periods, nil
	}

	var asMap map[string]trafficWire
	if err := json.Unmarshal(data, &asMap); err != nil {
		return nil, fmt.Errorf("traffic payload is neither array nor month-keyed object: %w", err)
	}
	periods := make([]models.TrafficPeriod, 0, len(asMap))
	for month, w := range asMap {
		periods = append(periods, w.toPeriod(month))
	}
	sortPeriods(periods)
	return periods, nil
}

func sortPeriods(periods []models.TrafficPeriod) {
	sort.Slice(periods, func(i, j int) bool { return periods[i].Month < periods[j].Month })
}

// ListTemplates retrieves the OS template catalog. The admin catalog is
// preferred; 403/404 responses fall back to the unprivileged endpoint.
func (c *APIClient) ListTemplates(ctx context.Context) ([]models.OSTemplate, error) {
	data, err := c.getData(ctx, "/api/admin/all-templates")
	if err != nil {
		status := ErrorStatus(err)
		if status != http.StatusForbidden && status != http.StatusNotFound {
			return nil, err
		}
		adminErr := err
		data, err = c.getData(ctx, "/api/os-templates")
		if err != nil {
			return nil, fmt.Errorf("admin catalog failed: %v; fallback failed: %w", adminErr, err)
		}
	}

	var templates []models.OSTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	return templates, nil
}

// FetchTemplate retrieves a single template record by ID.
func (c *APIClient) FetchTemplate(ctx context.Context, id int) (models.OSTemplate, error) {
	endpoint := fmt.Sprintf("/api/admin/templates/%d", id)
	data, err := c.getData(ctx, endpoint)
	if err != nil {
		if ErrorStatus(err) == http.StatusNotFound {
			return models.OSTemplate{}, fmt.Errorf("%w: %v", ErrTemplateNotFound, err)
		}
		return models.OSTemplate{}, err
	}
	var template models.OSTemplate
	if err := json.Unmarshal(data, &template); err != nil {
		return models.OSTemplate{}, fmt.Errorf("parse template %d: %w", id, err)
	}
	return template, nil
}

// FetchBranding retrieves cosmetic theming values.
func (c *APIClient) FetchBranding(ctx context.Context) (models.Branding, error) {
	data, err := c.getData(ctx, "/api/settings/branding")
	if err != nil {
		return models.Branding{}, err
	}
	var branding models.Branding
	if err := json.Unmarshal(data, &branding); err != nil {
		return models.Branding{}, fmt.Errorf("parse branding: %w", err)
	}
	return branding, nil
}

// ResetPassword generates a new root password for a server.
func (c *APIClient) ResetPassword(ctx context.Context, id int) (string, error) {
	endpoint := fmt.Sprintf("/api/user/servers/%d/password/reset", id)
	status, body, err := c.do(ctx, http.MethodPost, endpoint)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		message, _, _ := extractErrorMessage(body)
		return "", fmt.Errorf("%w: %s", ErrServerNotFound, message)
	}
	if status < 200 || status >= 300 {
		message, _, _ := extractErrorMessage(body)
		if message == "" {
			message = string(body)
		}
		return "", &APIError{StatusCode: status, Message: message}
	}

	var wrapped envelope
	payload := body
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Data) > 0 {
		payload = wrapped.Data
	}
	var result struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", fmt.Errorf("parse password reset response: %w", err)
	}
	if result.Password == "" {
		return "", fmt.Errorf("empty password in reset response")
	}
	return result.Password, nil
}

// HTTP plumbing

func (c *APIClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.commandTimeout()}
}

func (c *APIClient) commandTimeout() time.Duration {
	if c.CommandTimeout > 0 {
		return c.CommandTimeout
	}
	return 30 * time.Second
}

// do performs one request and returns the raw status and body. The error
// is non-nil only for transport failures.
func (c *APIClient) do(ctx context.Context, method, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// getData performs a GET, enforces a 2xx status, and unwraps the standard
// {"data": ...} envelope. Endpoints that skip the envelope return their
// body directly.
func (c *APIClient) getData(ctx context.Context, endpoint string) ([]byte, error) {
	status, body, err := c.do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		message, _, _ := extractErrorMessage(body)
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return nil, &APIError{StatusCode: status, Message: message}
	}

	var wrapped envelope
	if err := json.Unmarshal(body, &wrapped); err != nil || len(wrapped.Data) == 0 {
		return body, nil
	}
	return wrapped.Data, nil
}

// serverWire mirrors the control plane's server payload.
type serverWire struct {
	ID          int                 `json:"id"`
	Name        string              `json:"name"`
	UUID        string              `json:"uuid"`
	State       string              `json:"state"`
	PowerStatus *models.PowerStatus `json:"powerStatus"`
	RemoteState *models.RemoteState `json:"remoteState"`
	CPU         struct {
		Cores int `json:"cores"`
	} `json:"cpu"`
	Memory  int `json:"memory"`
	Storage []struct {
		Capacity int  `json:"capacity"`
		Primary  bool `json:"primary"`
	} `json:"storage"`
	Network struct {
		Interfaces []struct {
			Name string `json:"name"`
			MAC  string `json:"mac"`
			IPv4 []struct {
				Address string `json:"address"`
			} `json:"ipv4"`
			IPv6 []struct {
				Address string `json:"address"`
			} `json:"ipv6"`
		} `json:"interfaces"`
	} `json:"network"`
	Settings struct {
		OSTemplateInstallID models.FlexID `json:"osTemplateInstallId"`
	} `json:"settings"`
	OS struct {
		ID   models.FlexID `json:"id"`
		Name string        `json:"name"`
	} `json:"os"`
	OSInfo *models.GuestOSInfo `json:"osInfo"`
}

func (w serverWire) toSnapshot() models.ServerSnapshot {
	snap := models.ServerSnapshot{
		ID:          w.ID,
		Name:        w.Name,
		UUID:        w.UUID,
		State:       w.State,
		PowerStatus: w.PowerStatus,
		RemoteState: w.RemoteState,
		Resources: models.Resources{
			CPUCores: w.CPU.Cores,
			MemoryMB: w.Memory,
		},
		TemplateID: w.Settings.OSTemplateInstallID,
		OSID:       w.OS.ID,
		OSName:     w.OS.Name,
		GuestAgent: w.OSInfo,
	}
	for _, disk := range w.Storage {
		if disk.Primary || snap.Resources.StorageGB == 0 {
			snap.Resources.StorageGB = disk.Capacity
		}
	}
	for _, iface := range w.Network.Interfaces {
		converted := models.NetworkInterface{Name: iface.Name, MAC: iface.MAC}
		for _, addr := range iface.IPv4 {
			converted.IPv4 = append(converted.IPv4, addr.Address)
		}
		for _, addr := range iface.IPv6 {
			converted.IPv6 = append(converted.IPv6, addr.Address)
		}
		snap.Interfaces = append(snap.Interfaces, converted)
	}
	return snap
}
