// Package testing provides shared test fixtures for virtdash.
//
// It contains snapshot and template factories plus small helpers used
// across package test suites, built around github.com/stretchr/testify.
package testing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtdash/virtdash/internal/models"
)

// FixedTime is a fixed timestamp for deterministic tests.
var FixedTime = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

// SnapshotOption mutates a test snapshot during construction.
type SnapshotOption func(*models.ServerSnapshot)

// NewTestSnapshot builds a plausible running server snapshot.
func NewTestSnapshot(id int, opts ...SnapshotOption) models.ServerSnapshot {
	snap := models.ServerSnapshot{
		ID:          id,
		Name:        "test-server",
		UUID:        "11111111-2222-3333-4444-555555555555",
		State:       "running",
		PowerStatus: &models.PowerStatus{PowerState: "RUNNING"},
		Resources:   models.Resources{CPUCores: 2, MemoryMB: 4096, StorageGB: 80},
		Interfaces: []models.NetworkInterface{
			{Name: "eth0", MAC: "52:54:00:12:34:56", IPv4: []string{"203.0.113.10"}},
		},
		TemplateID: 1,
		FetchedAt:  FixedTime,
	}
	for _, opt := range opts {
		opt(&snap)
	}
	return snap
}

// WithState overrides the raw state string and clears the cached power
// status so lower-priority signals decide.
func WithState(state string) SnapshotOption {
	return func(s *models.ServerSnapshot) {
		s.State = state
		s.PowerStatus = nil
	}
}

// WithPowerState sets the cached power status.
func WithPowerState(powerState string) SnapshotOption {
	return func(s *models.ServerSnapshot) {
		s.PowerStatus = &models.PowerStatus{PowerState: powerState}
	}
}

// WithGuestAgent sets the guest agent OS report.
func WithGuestAgent(prettyName string) SnapshotOption {
	return func(s *models.ServerSnapshot) {
		s.GuestAgent = &models.GuestOSInfo{PrettyName: prettyName}
	}
}

// WithTemplate sets both template ID fields.
func WithTemplate(id int) SnapshotOption {
	return func(s *models.ServerSnapshot) {
		s.TemplateID = models.FlexID(id)
		s.OSID = models.FlexID(id)
	}
}

// NewTestTemplate builds a catalog template record.
func NewTestTemplate(id int, name, version string) models.OSTemplate {
	return models.OSTemplate{ID: models.FlexID(id), Name: name, Version: version}
}

// AssertJSONEqual asserts two values marshal to semantically equal JSON.
func AssertJSONEqual(t *testing.T, want, got any, msgAndArgs ...interface{}) {
	t.Helper()
	wantBytes, err := json.Marshal(want)
	require.NoError(t, err, "failed to marshal 'want' to JSON")
	gotBytes, err := json.Marshal(got)
	require.NoError(t, err, "failed to marshal 'got' to JSON")

	var wantValue, gotValue any
	require.NoError(t, json.Unmarshal(wantBytes, &wantValue))
	require.NoError(t, json.Unmarshal(gotBytes, &gotValue))
	assert.Equal(t, wantValue, gotValue, msgAndArgs...)
}
