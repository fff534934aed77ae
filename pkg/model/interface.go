// Package model defines the interface and VLAN types shared by the running
// configuration parser, the reconciliation engine and the NetBox client.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/swsync-network/swsync/pkg/util"
)

// Mode is the switchport mode parsed from device configuration.
type Mode string

const (
	ModeAccess Mode = "access"
	ModeTrunk  Mode = "trunk"
)

// NetBox 802.1Q interface modes.
const (
	RemoteModeAccess    = "access"
	RemoteModeTagged    = "tagged"
	RemoteModeTaggedAll = "tagged-all"
)

// RemoteMode maps a device switchport mode to the NetBox mode vocabulary.
func (m Mode) RemoteMode() string {
	if m == ModeTrunk {
		return RemoteModeTagged
	}
	return RemoteModeAccess
}

// AllowedVLANs is the set of VLANs a trunk carries. It is either
// unrestricted (no allowed-vlan directive ever constrained the trunk) or a
// sorted, deduplicated list of VLAN numbers, which may be empty. The zero
// value is an empty restricted list.
type AllowedVLANs struct {
	unrestricted bool
	vids         []int
}

// Unrestricted returns the allowed set of a trunk with no VLAN restriction.
func Unrestricted() AllowedVLANs {
	return AllowedVLANs{unrestricted: true}
}

// Restricted returns an explicit allowed set. The input is copied, sorted
// and deduplicated.
func Restricted(vids ...int) AllowedVLANs {
	sorted := make([]int, len(vids))
	copy(sorted, vids)
	sort.Ints(sorted)

	out := make([]int, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return AllowedVLANs{vids: out}
}

// IsUnrestricted reports whether the trunk carries all VLANs.
func (a AllowedVLANs) IsUnrestricted() bool {
	return a.unrestricted
}

// VIDs returns a copy of the explicit VLAN list. It is nil for an
// unrestricted set.
func (a AllowedVLANs) VIDs() []int {
	if a.unrestricted {
		return nil
	}
	out := make([]int, len(a.vids))
	copy(out, a.vids)
	return out
}

// Contains reports whether vid is carried by the trunk.
func (a AllowedVLANs) Contains(vid int) bool {
	if a.unrestricted {
		return true
	}
	i := sort.SearchInts(a.vids, vid)
	return i < len(a.vids) && a.vids[i] == vid
}

func (a AllowedVLANs) String() string {
	switch {
	case a.unrestricted:
		return "ALL"
	case len(a.vids) == 0:
		return "none"
	default:
		return util.CompactRange(a.vids)
	}
}

// MarshalJSON renders an unrestricted set as "ALL" and a restricted set as
// a JSON array.
func (a AllowedVLANs) MarshalJSON() ([]byte, error) {
	if a.unrestricted {
		return []byte(`"ALL"`), nil
	}
	if a.vids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.vids)
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (a *AllowedVLANs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte(`"ALL"`)) {
		*a = Unrestricted()
		return nil
	}
	var vids []int
	if err := json.Unmarshal(data, &vids); err != nil {
		return fmt.Errorf("allowed VLANs must be \"ALL\" or a list of numbers: %w", err)
	}
	*a = Restricted(vids...)
	return nil
}

// ParsedInterface is the canonical description of one interface block from
// a device running configuration.
type ParsedInterface struct {
	Name         string  `json:"name"`
	Enabled      bool    `json:"enabled"`
	Description  *string `json:"description,omitempty"`
	VoiceVLAN    *int    `json:"voice_vlan,omitempty"`
	ChannelGroup *int    `json:"channel_group,omitempty"`
	Mode         Mode    `json:"mode"`

	// AccessVLAN is set only in access mode.
	AccessVLAN *int `json:"access_vlan,omitempty"`

	// NativeVLAN and AllowedVLANs are meaningful only in trunk mode.
	NativeVLAN   *int         `json:"native_vlan,omitempty"`
	AllowedVLANs AllowedVLANs `json:"allowed_vlans"`

	IsPortChannelParent bool `json:"is_port_channel_parent,omitempty"`
}

// NewParsedInterface returns the descriptor of an interface block with no
// directives: enabled, access mode.
func NewParsedInterface(name string) *ParsedInterface {
	return &ParsedInterface{
		Name:                name,
		Enabled:             true,
		Mode:                ModeAccess,
		IsPortChannelParent: IsPortChannelName(name),
	}
}

// IsChannelMember reports whether the interface is bundled into a
// port-channel. VLAN semantics of members belong to the parent.
func (p *ParsedInterface) IsChannelMember() bool {
	return p.ChannelGroup != nil
}

// VLANRef is a NetBox nested VLAN object.
type VLANRef struct {
	ID   int    `json:"id"`
	VID  int    `json:"vid,omitempty"`
	Name string `json:"name,omitempty"`
}

// RemoteInterface is the system-of-record view of one device interface.
type RemoteInterface struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Enabled      bool      `json:"enabled"`
	Description  string    `json:"description"`
	Mode         string    `json:"mode"`
	UntaggedVLAN *VLANRef  `json:"untagged_vlan"`
	TaggedVLANs  []VLANRef `json:"tagged_vlans"`
}

// UntaggedVLANID returns the id of the untagged VLAN, or nil.
func (r *RemoteInterface) UntaggedVLANID() *int {
	if r.UntaggedVLAN == nil {
		return nil
	}
	id := r.UntaggedVLAN.ID
	return &id
}

// TaggedVLANIDs returns the sorted ids of the tagged VLANs.
func (r *RemoteInterface) TaggedVLANIDs() []int {
	ids := make([]int, 0, len(r.TaggedVLANs))
	for _, v := range r.TaggedVLANs {
		ids = append(ids, v.ID)
	}
	sort.Ints(ids)
	return ids
}
