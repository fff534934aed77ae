package netbox

import (
	"fmt"
	"strings"

	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/util"
)

// NestedRef is the brief form NetBox uses for related objects.
type NestedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
	Slug string `json:"slug,omitempty"`
}

// Choice is a NetBox choice field ({"value": ..., "label": ...}).
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// IPAddress is the brief form of an ipam IP address.
type IPAddress struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
}

// Device is the subset of dcim/devices the sync needs.
type Device struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Site       *NestedRef `json:"site"`
	Platform   *NestedRef `json:"platform"`
	PrimaryIP  *IPAddress `json:"primary_ip"`
	PrimaryIP4 *IPAddress `json:"primary_ip4"`
}

// PrimaryAddress returns the management address with the prefix length
// stripped ("10.0.0.5/24" -> "10.0.0.5").
func (d *Device) PrimaryAddress() (string, error) {
	ip := d.PrimaryIP
	if ip == nil || ip.Address == "" {
		ip = d.PrimaryIP4
	}
	if ip == nil || ip.Address == "" {
		return "", fmt.Errorf("device %s has no primary IP: %w", d.Name, util.ErrInvalidConfig)
	}
	addr, _, _ := strings.Cut(ip.Address, "/")
	return addr, nil
}

// PlatformSlug returns the platform slug, or "".
func (d *Device) PlatformSlug() string {
	if d.Platform == nil {
		return ""
	}
	return d.Platform.Slug
}

// PlatformName returns the platform display name, or "".
func (d *Device) PlatformName() string {
	if d.Platform == nil {
		return ""
	}
	return d.Platform.Name
}

// NestedVLAN is the brief VLAN form embedded in interface records.
type NestedVLAN struct {
	ID   int    `json:"id"`
	VID  int    `json:"vid"`
	Name string `json:"name,omitempty"`
}

// Interface is the subset of dcim/interfaces the sync reads.
type Interface struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Device       *NestedRef   `json:"device,omitempty"`
	Enabled      bool         `json:"enabled"`
	Description  string       `json:"description"`
	Mode         *Choice      `json:"mode"`
	UntaggedVLAN *NestedVLAN  `json:"untagged_vlan"`
	TaggedVLANs  []NestedVLAN `json:"tagged_vlans"`
}

// ToRecord converts the API form to the reconciliation record.
func (i *Interface) ToRecord() model.RemoteInterface {
	r := model.RemoteInterface{
		ID:          i.ID,
		Name:        i.Name,
		Enabled:     i.Enabled,
		Description: i.Description,
	}
	if i.Mode != nil {
		r.Mode = i.Mode.Value
	}
	if i.UntaggedVLAN != nil {
		r.UntaggedVLAN = &model.VLANRef{ID: i.UntaggedVLAN.ID, VID: i.UntaggedVLAN.VID, Name: i.UntaggedVLAN.Name}
	}
	for _, v := range i.TaggedVLANs {
		r.TaggedVLANs = append(r.TaggedVLANs, model.VLANRef{ID: v.ID, VID: v.VID, Name: v.Name})
	}
	return r
}

// Records converts a list of interfaces.
func Records(ifaces []Interface) []model.RemoteInterface {
	out := make([]model.RemoteInterface, 0, len(ifaces))
	for i := range ifaces {
		out = append(out, ifaces[i].ToRecord())
	}
	return out
}

// VLAN is an ipam VLAN. VID is a pointer because incomplete records occur
// in exports and must be told apart from a zero value.
type VLAN struct {
	ID   int        `json:"id"`
	VID  *int       `json:"vid"`
	Name string     `json:"name"`
	Site *NestedRef `json:"site,omitempty"`
}

// VLANFilter selects the VLAN catalog of one site.
type VLANFilter struct {
	SiteID   int
	SiteSlug string
}

// BuildVLANTable maps VLAN numbers to NetBox VLAN ids. VLANs with no id or
// vid are skipped. When a number repeats, the first record wins.
func BuildVLANTable(vlans []VLAN) model.VLANTable {
	table := make(model.VLANTable, len(vlans))
	for _, v := range vlans {
		if v.ID == 0 || v.VID == nil {
			util.WithField("vlan", v.Name).Debug("Skipping VLAN record without id or vid")
			continue
		}
		if _, dup := table[*v.VID]; dup {
			util.WithField("vid", *v.VID).Warn("Duplicate VLAN number in catalog, keeping first")
			continue
		}
		table[*v.VID] = v.ID
	}
	return table
}
