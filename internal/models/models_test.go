package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool { return &v }

func TestResolveStatePriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		snap ServerSnapshot
		want DisplayState
	}{
		{
			name: "cached power status wins over all lower tiers",
			snap: ServerSnapshot{
				PowerStatus: &PowerStatus{PowerState: "RUNNING"},
				RemoteState: &RemoteState{State: "stopped"},
				State:       "stopped",
			},
			want: StateRunning,
		},
		{
			name: "cached stopped wins over live running",
			snap: ServerSnapshot{
				PowerStatus: &PowerStatus{PowerState: "STOPPED"},
				RemoteState: &RemoteState{State: "running"},
				State:       "running",
			},
			want: StateStopped,
		},
		{
			name: "unrecognized cached value falls through to remote state",
			snap: ServerSnapshot{
				PowerStatus: &PowerStatus{PowerState: "REBOOTING"},
				RemoteState: &RemoteState{State: "running"},
			},
			want: StateRunning,
		},
		{
			name: "remote state string wins over raw state",
			snap: ServerSnapshot{
				RemoteState: &RemoteState{State: "running"},
				State:       "stopped",
			},
			want: StateRunning,
		},
		{
			name: "remote running boolean true counts as running",
			snap: ServerSnapshot{
				RemoteState: &RemoteState{Running: boolPtr(true), State: "stopped"},
			},
			want: StateRunning,
		},
		{
			name: "remote running boolean false counts as stopped",
			snap: ServerSnapshot{
				RemoteState: &RemoteState{Running: boolPtr(false)},
				State:       "running",
			},
			want: StateStopped,
		},
		{
			name: "absent running boolean falls through to raw state",
			snap: ServerSnapshot{
				RemoteState: &RemoteState{State: "migrating"},
				State:       "running",
			},
			want: StateRunning,
		},
		{
			name: "raw running state",
			snap: ServerSnapshot{State: "RUNNING"},
			want: StateRunning,
		},
		{
			name: "raw stopped state",
			snap: ServerSnapshot{State: "stopped"},
			want: StateStopped,
		},
		{
			name: "complete means successfully stopped",
			snap: ServerSnapshot{State: "complete"},
			want: StateStopped,
		},
		{
			name: "empty snapshot is unknown",
			snap: ServerSnapshot{},
			want: StateUnknown,
		},
		{
			name: "unrecognized everything is unknown",
			snap: ServerSnapshot{
				PowerStatus: &PowerStatus{PowerState: "paused"},
				RemoteState: &RemoteState{State: "migrating"},
				State:       "building",
			},
			want: StateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveState(tt.snap))
		})
	}
}

func TestResolveStateIsTotalAndIdempotent(t *testing.T) {
	snaps := []ServerSnapshot{
		{},
		{State: "complete"},
		{PowerStatus: &PowerStatus{PowerState: "RUNNING"}},
		{RemoteState: &RemoteState{Running: boolPtr(false)}},
	}
	for _, snap := range snaps {
		first := ResolveState(snap)
		second := ResolveState(snap)
		assert.Equal(t, first, second)
		assert.Contains(t, []DisplayState{StateRunning, StateStopped, StateUnknown}, first)
	}
}

func TestValidPowerAction(t *testing.T) {
	for _, known := range []string{"boot", "Restart", " shutdown ", "POWEROFF"} {
		action, ok := ValidPowerAction(known)
		require.True(t, ok, known)
		assert.NotEmpty(t, action)
	}
	_, ok := ValidPowerAction("suspend")
	assert.False(t, ok)
	_, ok = ValidPowerAction("")
	assert.False(t, ok)
}

func TestFlexIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    FlexID
		wantErr bool
	}{
		{in: `7`, want: 7},
		{in: `"7"`, want: 7},
		{in: `null`, want: 0},
		{in: `""`, want: 0},
		{in: `"abc"`, wantErr: true},
	}
	for _, tt := range tests {
		var got FlexID
		err := json.Unmarshal([]byte(tt.in), &got)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	out, err := json.Marshal(FlexID(12))
	require.NoError(t, err)
	assert.Equal(t, `12`, string(out))
}
