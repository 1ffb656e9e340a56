package oslabel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/virtdash/virtdash/internal/models"
)

func TestResolveFallbackPriority(t *testing.T) {
	pinned := models.OSTemplate{ID: 17, Name: "Rocky Linux", Version: "9"}
	catalog := Catalog{
		Pinned: &pinned,
		Templates: []models.OSTemplate{
			{ID: 17, Name: "Rocky Linux", Version: "9"},
			{ID: 23, Name: "Debian", Version: "12"},
		},
	}

	tests := []struct {
		name     string
		snap     models.ServerSnapshot
		catalog  Catalog
		wantName string
		wantIcon Icon
	}{
		{
			name: "guest agent pretty-name wins over everything",
			snap: models.ServerSnapshot{
				GuestAgent: &models.GuestOSInfo{PrettyName: "Ubuntu 22.04"},
				TemplateID: 17,
				OSName:     "CentOS",
			},
			catalog:  catalog,
			wantName: "Ubuntu 22.04",
			wantIcon: IconUbuntu,
		},
		{
			name: "guest agent name plus version when pretty-name missing",
			snap: models.ServerSnapshot{
				GuestAgent: &models.GuestOSInfo{Name: "Alpine", Version: "3.19"},
			},
			wantName: "Alpine 3.19",
			wantIcon: IconAlpine,
		},
		{
			name: "guest agent bare name as last agent resort",
			snap: models.ServerSnapshot{
				GuestAgent: &models.GuestOSInfo{Name: "FreeBSD"},
			},
			wantName: "FreeBSD",
			wantIcon: IconFreeBSD,
		},
		{
			name:     "pinned template when no guest agent",
			snap:     models.ServerSnapshot{TemplateID: 17},
			catalog:  catalog,
			wantName: "Rocky Linux 9",
			wantIcon: IconRocky,
		},
		{
			name:     "catalog match without pinned record",
			snap:     models.ServerSnapshot{TemplateID: 23},
			catalog:  Catalog{Templates: catalog.Templates},
			wantName: "Debian 12",
			wantIcon: IconDebian,
		},
		{
			name:     "secondary id field matches the catalog",
			snap:     models.ServerSnapshot{OSID: 23},
			catalog:  Catalog{Templates: catalog.Templates},
			wantName: "Debian 12",
			wantIcon: IconDebian,
		},
		{
			name:     "raw os name when no template matches",
			snap:     models.ServerSnapshot{TemplateID: 99, OSName: "Windows Server 2022"},
			catalog:  Catalog{Templates: catalog.Templates},
			wantName: "Windows Server 2022",
			wantIcon: IconWindows,
		},
		{
			name:     "default when every source is empty",
			snap:     models.ServerSnapshot{},
			wantName: "Unknown OS",
			wantIcon: IconGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Resolve(tt.snap, tt.catalog)
			assert.Equal(t, tt.wantName, info.Name)
			assert.Equal(t, tt.wantIcon, info.Icon)
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	snap := models.ServerSnapshot{
		GuestAgent: &models.GuestOSInfo{PrettyName: "Ubuntu 22.04"},
	}
	first := Resolve(snap, Catalog{})
	second := Resolve(snap, Catalog{})
	assert.Equal(t, first, second)
}

func TestIconForKeywordMatching(t *testing.T) {
	tests := []struct {
		name string
		want Icon
	}{
		{"Ubuntu 22.04 LTS", IconUbuntu},
		{"UBUNTU server", IconUbuntu},
		{"AlmaLinux 9", IconAlma},
		{"Arch Linux", IconArch},
		{"openSUSE Leap", IconSuse},
		{"TempleOS", IconGeneric},
		{"", IconGeneric},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IconFor(tt.name), tt.name)
	}
}
