package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field names of a NetBox interface partial update.
const (
	FieldEnabled      = "enabled"
	FieldDescription  = "description"
	FieldMode         = "mode"
	FieldUntaggedVLAN = "untagged_vlan"
	FieldTaggedVLANs  = "tagged_vlans"
)

// ChangeOperation is a sparse partial update of one NetBox interface. A nil
// field means "no change". The untagged VLAN and tagged VLAN list have an
// extra flag because clearing them is a change distinct from leaving them
// alone.
type ChangeOperation struct {
	ID int

	// Interface is the canonical interface name. It is not sent to NetBox.
	Interface string

	Enabled     *bool
	Description *string
	Mode        *string

	UntaggedVLAN      *int
	ClearUntaggedVLAN bool

	TaggedVLANs    []int
	SetTaggedVLANs bool
}

// NewChangeOperation creates an empty operation for a remote interface.
func NewChangeOperation(id int, iface string) *ChangeOperation {
	return &ChangeOperation{ID: id, Interface: iface}
}

func (op *ChangeOperation) SetEnabled(enabled bool) {
	op.Enabled = &enabled
}

func (op *ChangeOperation) SetDescription(desc string) {
	op.Description = &desc
}

func (op *ChangeOperation) SetMode(mode string) {
	op.Mode = &mode
}

// SetUntaggedVLAN sets the untagged VLAN to a NetBox VLAN id, or clears it
// when id is nil.
func (op *ChangeOperation) SetUntaggedVLAN(id *int) {
	if id == nil {
		op.UntaggedVLAN = nil
		op.ClearUntaggedVLAN = true
		return
	}
	v := *id
	op.UntaggedVLAN = &v
	op.ClearUntaggedVLAN = false
}

// ReplaceTaggedVLANs replaces the tagged VLAN list. An empty list clears it.
func (op *ChangeOperation) ReplaceTaggedVLANs(ids []int) {
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)
	op.TaggedVLANs = sorted
	op.SetTaggedVLANs = true
}

// HasUntaggedVLANChange reports whether the operation sets or clears the
// untagged VLAN.
func (op *ChangeOperation) HasUntaggedVLANChange() bool {
	return op.UntaggedVLAN != nil || op.ClearUntaggedVLAN
}

// Fields returns the names of the fields the operation changes.
func (op *ChangeOperation) Fields() []string {
	var fields []string
	if op.Enabled != nil {
		fields = append(fields, FieldEnabled)
	}
	if op.Description != nil {
		fields = append(fields, FieldDescription)
	}
	if op.Mode != nil {
		fields = append(fields, FieldMode)
	}
	if op.HasUntaggedVLANChange() {
		fields = append(fields, FieldUntaggedVLAN)
	}
	if op.SetTaggedVLANs {
		fields = append(fields, FieldTaggedVLANs)
	}
	return fields
}

// IsEmpty returns true if the operation changes nothing.
func (op *ChangeOperation) IsEmpty() bool {
	return len(op.Fields()) == 0
}

// ApplyTo returns a copy of r with the operation applied.
func (op *ChangeOperation) ApplyTo(r RemoteInterface) RemoteInterface {
	out := r
	if op.Enabled != nil {
		out.Enabled = *op.Enabled
	}
	if op.Description != nil {
		out.Description = *op.Description
	}
	if op.Mode != nil {
		out.Mode = *op.Mode
	}
	if op.ClearUntaggedVLAN {
		out.UntaggedVLAN = nil
	} else if op.UntaggedVLAN != nil {
		out.UntaggedVLAN = &VLANRef{ID: *op.UntaggedVLAN}
	}
	if op.SetTaggedVLANs {
		out.TaggedVLANs = make([]VLANRef, 0, len(op.TaggedVLANs))
		for _, id := range op.TaggedVLANs {
			out.TaggedVLANs = append(out.TaggedVLANs, VLANRef{ID: id})
		}
	} else if r.TaggedVLANs != nil {
		out.TaggedVLANs = append([]VLANRef(nil), r.TaggedVLANs...)
	}
	return out
}

// payload builds the NetBox bulk PATCH element.
func (op *ChangeOperation) payload() map[string]interface{} {
	p := map[string]interface{}{"id": op.ID}
	if op.Enabled != nil {
		p[FieldEnabled] = *op.Enabled
	}
	if op.Description != nil {
		p[FieldDescription] = *op.Description
	}
	if op.Mode != nil {
		p[FieldMode] = *op.Mode
	}
	if op.ClearUntaggedVLAN {
		p[FieldUntaggedVLAN] = nil
	} else if op.UntaggedVLAN != nil {
		p[FieldUntaggedVLAN] = *op.UntaggedVLAN
	}
	if op.SetTaggedVLANs {
		tagged := op.TaggedVLANs
		if tagged == nil {
			tagged = []int{}
		}
		p[FieldTaggedVLANs] = tagged
	}
	return p
}

// MarshalJSON renders the operation as a NetBox bulk update element, e.g.
// {"id":12,"mode":"access","untagged_vlan":40,"tagged_vlans":[]}.
func (op *ChangeOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.payload())
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (op *ChangeOperation) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*op = ChangeOperation{}

	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &op.ID); err != nil {
			return fmt.Errorf("id: %w", err)
		}
	}
	if v, ok := raw[FieldEnabled]; ok {
		if err := json.Unmarshal(v, &op.Enabled); err != nil {
			return fmt.Errorf("%s: %w", FieldEnabled, err)
		}
	}
	if v, ok := raw[FieldDescription]; ok {
		if err := json.Unmarshal(v, &op.Description); err != nil {
			return fmt.Errorf("%s: %w", FieldDescription, err)
		}
	}
	if v, ok := raw[FieldMode]; ok {
		if err := json.Unmarshal(v, &op.Mode); err != nil {
			return fmt.Errorf("%s: %w", FieldMode, err)
		}
	}
	if v, ok := raw[FieldUntaggedVLAN]; ok {
		var id *int
		if err := json.Unmarshal(v, &id); err != nil {
			return fmt.Errorf("%s: %w", FieldUntaggedVLAN, err)
		}
		op.SetUntaggedVLAN(id)
	}
	if v, ok := raw[FieldTaggedVLANs]; ok {
		var ids []int
		if err := json.Unmarshal(v, &ids); err != nil {
			return fmt.Errorf("%s: %w", FieldTaggedVLANs, err)
		}
		op.ReplaceTaggedVLANs(ids)
	}
	return nil
}

// String returns a one-line summary such as
// "Gi1/0/1 (id 12): enabled=false untagged_vlan=40 tagged_vlans=[]".
func (op *ChangeOperation) String() string {
	var parts []string
	if op.Enabled != nil {
		parts = append(parts, fmt.Sprintf("%s=%t", FieldEnabled, *op.Enabled))
	}
	if op.Description != nil {
		parts = append(parts, fmt.Sprintf("%s=%q", FieldDescription, *op.Description))
	}
	if op.Mode != nil {
		parts = append(parts, fmt.Sprintf("%s=%s", FieldMode, *op.Mode))
	}
	if op.ClearUntaggedVLAN {
		parts = append(parts, FieldUntaggedVLAN+"=null")
	} else if op.UntaggedVLAN != nil {
		parts = append(parts, fmt.Sprintf("%s=%d", FieldUntaggedVLAN, *op.UntaggedVLAN))
	}
	if op.SetTaggedVLANs {
		parts = append(parts, fmt.Sprintf("%s=%v", FieldTaggedVLANs, op.TaggedVLANs))
	}

	name := op.Interface
	if name == "" {
		name = "interface"
	}
	return fmt.Sprintf("%s (id %d): %s", name, op.ID, strings.Join(parts, " "))
}
