// Package models provides the view-model types for virtdash.
//
// These are transient, client-held representations of control plane state:
//   - ServerSnapshot: a point-in-time view of a server, replaced wholesale
//     on every successful fetch
//   - PowerOutcome: the classified result of a dispatched power action
//   - VncStatus, OSTemplate, TrafficPeriod, Branding: capability and
//     catalog descriptors
//
// The package also holds ResolveState, the reconciliation of a canonical
// display state from the three possibly-conflicting status signals the
// control plane returns.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DisplayState is the canonical lifecycle state shown to users.
type DisplayState string

const (
	// StateRunning indicates the server is powered on.
	StateRunning DisplayState = "RUNNING"
	// StateStopped indicates the server is powered off.
	StateStopped DisplayState = "STOPPED"
	// StateUnknown indicates no status signal could be interpreted.
	StateUnknown DisplayState = "UNKNOWN"
)

// PowerAction is a power command accepted by the control plane.
type PowerAction string

const (
	ActionBoot     PowerAction = "boot"
	ActionRestart  PowerAction = "restart"
	ActionShutdown PowerAction = "shutdown"
	ActionPoweroff PowerAction = "poweroff"
)

// PowerActions lists every accepted power action.
var PowerActions = []PowerAction{ActionBoot, ActionRestart, ActionShutdown, ActionPoweroff}

// ValidPowerAction reports whether s names a known power action.
func ValidPowerAction(s string) (PowerAction, bool) {
	action := PowerAction(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PowerActions {
		if action == known {
			return action, true
		}
	}
	return "", false
}

// FlexID is a numeric identifier that the control plane serializes
// inconsistently as either a JSON number or a numeric string.
type FlexID int

// UnmarshalJSON accepts 5, "5", and null (which decodes to zero).
func (f *FlexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	if unquoted, err := strconv.Unquote(trimmed); err == nil {
		trimmed = strings.TrimSpace(unquoted)
		if trimmed == "" {
			*f = 0
			return nil
		}
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fmt.Errorf("parse id %s: %w", string(data), err)
	}
	*f = FlexID(n)
	return nil
}

// MarshalJSON always emits a JSON number.
func (f FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(f))
}

// PowerStatus is the locally cached last-known power state for a server.
type PowerStatus struct {
	PowerState string `json:"powerState"`
}

// RemoteState is the result of a live hypervisor poll. Running is a
// pointer because its absence is meaningful: nil means the poll did not
// report a boolean and lower-priority signals must be consulted.
type RemoteState struct {
	State   string `json:"state"`
	Running *bool  `json:"running"`
}

// GuestOSInfo is what the in-VM guest agent reports about the live OS.
type GuestOSInfo struct {
	PrettyName string `json:"pretty-name"`
	Name       string `json:"name"`
	Version    string `json:"version"`
}

// NetworkInterface describes one NIC on a server.
type NetworkInterface struct {
	Name string   `json:"name"`
	MAC  string   `json:"mac"`
	IPv4 []string `json:"ipv4"`
	IPv6 []string `json:"ipv6"`
}

// Resources describes the provisioned capacity of a server.
type Resources struct {
	CPUCores  int `json:"cpuCores"`
	MemoryMB  int `json:"memoryMB"`
	StorageGB int `json:"storageGB"`
}

// ServerSnapshot is a point-in-time view of a server as last fetched from
// the control plane. Snapshots are replaced wholesale on every successful
// fetch and never partially mutated.
type ServerSnapshot struct {
	ID          int                `json:"id"`
	Name        string             `json:"name"`
	UUID        string             `json:"uuid"`
	State       string             `json:"state"`
	PowerStatus *PowerStatus       `json:"powerStatus,omitempty"`
	RemoteState *RemoteState       `json:"remoteState,omitempty"`
	Resources   Resources          `json:"resources"`
	Interfaces  []NetworkInterface `json:"interfaces,omitempty"`
	TemplateID  FlexID             `json:"templateId,omitempty"`
	OSID        FlexID             `json:"osId,omitempty"`
	OSName      string             `json:"osName,omitempty"`
	GuestAgent  *GuestOSInfo       `json:"guestAgent,omitempty"`
	FetchedAt   time.Time          `json:"fetchedAt,omitempty"`
}

// PowerOutcome is the classified result of one dispatched power action.
// Pending marks a soft success: the control plane accepted the request but
// queued it behind another in-flight operation.
type PowerOutcome struct {
	Success   bool   `json:"success"`
	Pending   bool   `json:"pending"`
	Message   string `json:"message,omitempty"`
	QueueInfo string `json:"queueInfo,omitempty"`
}

// VncStatus is a capability descriptor for a server's VNC console.
type VncStatus struct {
	Enabled  bool   `json:"enabled"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Hostname string `json:"hostname"`
	Password string `json:"password"`
}

// OSTemplate describes an installable operating system image.
type OSTemplate struct {
	ID      FlexID `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Variant string `json:"variant,omitempty"`
	Arch    string `json:"arch,omitempty"`
}

// TrafficPeriod is one month of traffic accounting, already normalized
// from the control plane's two wire shapes.
type TrafficPeriod struct {
	Month      string `json:"month"`
	RxBytes    int64  `json:"rxBytes"`
	TxBytes    int64  `json:"txBytes"`
	TotalBytes int64  `json:"totalBytes"`
	LimitBytes int64  `json:"limitBytes,omitempty"`
}

// Branding holds cosmetic theming values served by the control plane.
type Branding struct {
	Name         string `json:"name"`
	LogoURL      string `json:"logoUrl,omitempty"`
	PrimaryColor string `json:"primaryColor,omitempty"`
}

// ResolveState derives the canonical display state from a snapshot.
//
// Signals are consulted in strict priority order, first match wins:
//
//  1. the locally cached powerStatus.powerState
//  2. the live remoteState poll (state string or running boolean)
//  3. the raw state string from the server record, where "complete" is a
//     vendor quirk meaning a successfully stopped or freshly built server
//
// The function is pure and total: it always returns one of RUNNING,
// STOPPED, or UNKNOWN.
func ResolveState(s ServerSnapshot) DisplayState {
	if ps := s.PowerStatus; ps != nil {
		switch ps.PowerState {
		case "RUNNING":
			return StateRunning
		case "STOPPED":
			return StateStopped
		}
	}
	if rs := s.RemoteState; rs != nil {
		switch {
		case strings.EqualFold(rs.State, "running") || (rs.Running != nil && *rs.Running):
			return StateRunning
		case strings.EqualFold(rs.State, "stopped") || (rs.Running != nil && !*rs.Running):
			return StateStopped
		}
	}
	switch strings.ToLower(strings.TrimSpace(s.State)) {
	case "running":
		return StateRunning
	case "stopped", "complete":
		return StateStopped
	}
	return StateUnknown
}
