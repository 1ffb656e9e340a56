// Package virtfusion provides a client abstraction for the VirtFusion
// control plane REST API.
//
// The control plane owns all real server state: power status, VNC
// brokering, traffic accounting, and OS template catalogs. This package
// only consumes that state. Two implementations exist: APIClient (HTTP)
// and FakeClient (deterministic in-memory state for tests).
//
// Power action responses are classified rather than treated as plain
// errors: the control plane signals "request accepted but queued behind
// another operation" with HTTP 423 or a message substring, and both are
// surfaced as soft successes with Pending set.
package virtfusion

import (
	"context"

	"github.com/virtdash/virtdash/internal/models"
)

// Client defines the consumption contract with the control plane.
type Client interface {
	// FetchServer retrieves a wholesale snapshot of one server, including
	// the live remoteState poll result when the control plane provides it.
	// Returns ErrServerNotFound for unknown IDs.
	FetchServer(ctx context.Context, id int) (models.ServerSnapshot, error)

	// PowerAction dispatches one power command and classifies the response.
	// The returned outcome is always populated for any HTTP response the
	// control plane produced; the error is non-nil only for transport
	// failures where no response was received.
	PowerAction(ctx context.Context, id int, action models.PowerAction) (models.PowerOutcome, error)

	// FetchVNC retrieves the VNC capability descriptor for a server.
	// Callers should cache this aggressively: the vendor endpoint is
	// suspected of toggling remote VNC state on each fetch.
	FetchVNC(ctx context.Context, id int) (models.VncStatus, error)

	// FetchTraffic retrieves monthly traffic records, normalized from the
	// control plane's two wire shapes (array or month-keyed object) into
	// one canonical slice sorted by month.
	FetchTraffic(ctx context.Context, id int) ([]models.TrafficPeriod, error)

	// ListTemplates retrieves the OS template catalog, falling back to the
	// unprivileged endpoint when the admin catalog is unavailable.
	ListTemplates(ctx context.Context) ([]models.OSTemplate, error)

	// FetchTemplate retrieves a single template record. This covers the
	// case where the bulk catalog fetch omitted the server's template.
	// Returns ErrTemplateNotFound for unknown IDs.
	FetchTemplate(ctx context.Context, id int) (models.OSTemplate, error)

	// FetchBranding retrieves cosmetic theming values.
	FetchBranding(ctx context.Context) (models.Branding, error)

	// ResetPassword generates a new root password for a server and returns
	// it. Returns ErrServerNotFound for unknown IDs.
	ResetPassword(ctx context.Context, id int) (string, error)
}
