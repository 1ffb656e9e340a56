package dashboard

import (
	"time"

	"github.com/virtdash/virtdash/internal/models"
	"github.com/virtdash/virtdash/internal/oslabel"
)

// V1ServerResponse is the composed view of one server: the raw snapshot
// plus the derived display state and OS label.
type V1ServerResponse struct {
	Server       models.ServerSnapshot `json:"server"`
	DisplayState models.DisplayState   `json:"displayState"`
	OS           oslabel.Info          `json:"os"`
}

// V1PowerResponse reports the classified outcome of a power action.
type V1PowerResponse struct {
	Accepted      bool   `json:"accepted"`
	Pending       bool   `json:"pending"`
	Message       string `json:"message,omitempty"`
	QueueInfo     string `json:"queueInfo,omitempty"`
	CorrelationID string `json:"correlationId"`
}

// V1PasswordResponse carries a freshly generated or vault-held password.
type V1PasswordResponse struct {
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// V1PowerActionRecord is one audited power dispatch.
type V1PowerActionRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	Result        string    `json:"result"`
	Message       string    `json:"message,omitempty"`
	CorrelationID string    `json:"correlationId"`
}

// V1ActionsResponse lists recent power dispatches for a server.
type V1ActionsResponse struct {
	ServerID int                   `json:"serverId"`
	Actions  []V1PowerActionRecord `json:"actions"`
}

// V1TemplatesResponse carries the OS template catalog.
type V1TemplatesResponse struct {
	Templates []models.OSTemplate `json:"templates"`
}

// V1StatusResponse summarizes daemon health for operators.
type V1StatusResponse struct {
	Version        string         `json:"version"`
	UptimeSeconds  int64          `json:"uptimeSeconds"`
	WatchedServers []int          `json:"watchedServers"`
	CacheEntries   map[string]int `json:"cacheEntries"`
	MetricsEnabled bool           `json:"metricsEnabled"`
}
