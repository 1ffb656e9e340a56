// Package oslabel derives a human-readable operating system label and
// icon for a server from several data sources of decreasing reliability.
//
// The fallback priority is an explicit, ordered list of extractor
// functions combined with a first-non-empty-wins rule:
//
//  1. guest-agent reported OS info (reflects the live guest, most accurate)
//  2. a pinned single-template lookup (covers catalog gaps)
//  3. a match in the bulk template catalog (IDs compared loosely, since
//     the control plane serializes them as numbers or numeric strings)
//  4. the raw OS name stored on the server record
//  5. the "Unknown OS" default
//
// Icon selection is a pure substring match over known distribution
// keywords, first match wins.
package oslabel

import (
	"strings"

	"github.com/virtdash/virtdash/internal/models"
)

// Icon identifies the distribution icon a frontend should render.
type Icon string

const (
	IconUbuntu  Icon = "ubuntu"
	IconDebian  Icon = "debian"
	IconCentOS  Icon = "centos"
	IconAlma    Icon = "almalinux"
	IconRocky   Icon = "rocky"
	IconFedora  Icon = "fedora"
	IconAlpine  Icon = "alpine"
	IconArch    Icon = "arch"
	IconSuse    Icon = "suse"
	IconFreeBSD Icon = "freebsd"
	IconWindows Icon = "windows"
	IconGeneric Icon = "generic"
)

// Info is the resolved OS label for display.
type Info struct {
	Name string `json:"name"`
	Icon Icon   `json:"icon"`
}

// Catalog bundles the template data available for label resolution.
// Pinned is the result of a specifically-fetched single template record;
// Templates is the bulk catalog.
type Catalog struct {
	Pinned    *models.OSTemplate
	Templates []models.OSTemplate
}

// Extractor produces a candidate OS name from a snapshot, or "" when its
// source has nothing to offer.
type Extractor func(snap models.ServerSnapshot, catalog Catalog) string

// DefaultExtractors returns the extractor chain in fallback priority order.
func DefaultExtractors() []Extractor {
	return []Extractor{
		GuestAgentName,
		PinnedTemplateName,
		CatalogTemplateName,
		RawOSName,
	}
}

// Resolve runs the default extractor chain and returns the first
// non-empty name with its icon, defaulting to "Unknown OS".
func Resolve(snap models.ServerSnapshot, catalog Catalog) Info {
	return ResolveWith(DefaultExtractors(), snap, catalog)
}

// ResolveWith runs an explicit extractor chain, first non-empty wins.
func ResolveWith(extractors []Extractor, snap models.ServerSnapshot, catalog Catalog) Info {
	for _, extract := range extractors {
		if name := strings.TrimSpace(extract(snap, catalog)); name != "" {
			return Info{Name: name, Icon: IconFor(name)}
		}
	}
	return Info{Name: "Unknown OS", Icon: IconGeneric}
}

// GuestAgentName reports what the in-VM guest agent sees: pretty-name,
// else name plus version, else bare name.
func GuestAgentName(snap models.ServerSnapshot, _ Catalog) string {
	agent := snap.GuestAgent
	if agent == nil {
		return ""
	}
	if agent.PrettyName != "" {
		return agent.PrettyName
	}
	if agent.Name != "" && agent.Version != "" {
		return agent.Name + " " + agent.Version
	}
	return agent.Name
}

// PinnedTemplateName uses the specifically-fetched template record.
func PinnedTemplateName(_ models.ServerSnapshot, catalog Catalog) string {
	if catalog.Pinned == nil {
		return ""
	}
	return templateLabel(*catalog.Pinned)
}

// CatalogTemplateName searches the bulk catalog for the server's template.
// Both candidate ID fields on the snapshot are tried, in order.
func CatalogTemplateName(snap models.ServerSnapshot, catalog Catalog) string {
	for _, candidate := range []models.FlexID{snap.TemplateID, snap.OSID} {
		if candidate == 0 {
			continue
		}
		for _, template := range catalog.Templates {
			if template.ID == candidate {
				return templateLabel(template)
			}
		}
	}
	return ""
}

// RawOSName falls back to the OS name stored directly on the server record.
func RawOSName(snap models.ServerSnapshot, _ Catalog) string {
	return snap.OSName
}

func templateLabel(t models.OSTemplate) string {
	if t.Name == "" {
		return ""
	}
	if t.Version != "" {
		return t.Name + " " + t.Version
	}
	return t.Name
}

// iconKeywords maps name substrings to icons, checked in order.
var iconKeywords = []struct {
	keyword string
	icon    Icon
}{
	{"ubuntu", IconUbuntu},
	{"debian", IconDebian},
	{"centos", IconCentOS},
	{"almalinux", IconAlma},
	{"alma", IconAlma},
	{"rocky", IconRocky},
	{"fedora", IconFedora},
	{"alpine", IconAlpine},
	{"arch", IconArch},
	{"suse", IconSuse},
	{"freebsd", IconFreeBSD},
	{"windows", IconWindows},
}

// IconFor picks the icon for a resolved OS name. Matching is
// case-insensitive substring, first keyword wins, generic by default.
func IconFor(name string) Icon {
	lowered := strings.ToLower(name)
	for _, entry := range iconKeywords {
		if strings.Contains(lowered, entry.keyword) {
			return entry.icon
		}
	}
	return IconGeneric
}
