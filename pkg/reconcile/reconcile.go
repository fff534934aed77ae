// Package reconcile compares parsed device interfaces with NetBox interface
// records and computes the partial updates that make NetBox match the device.
//
// Everything here is pure: no I/O, no shared state. Engine methods may be
// called concurrently.
package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/swsync-network/swsync/pkg/model"
)

var (
	// ErrNilVLANTable is returned when no VLAN translation table is given.
	ErrNilVLANTable = errors.New("reconcile: nil VLAN table")
	// ErrNilInput is returned for a nil local or remote interface.
	ErrNilInput = errors.New("reconcile: nil interface")
)

// DefaultAccessVLAN is the VLAN of an access port with no access vlan line.
const DefaultAccessVLAN = 1

// UnrestrictedPolicy decides what an unrestricted trunk ("allowed vlan
// all", or no allowed vlan line) means for the NetBox tagged VLAN list.
type UnrestrictedPolicy string

const (
	// UnrestrictedClear empties the tagged list: no VLAN was named
	// explicitly, so none is recorded.
	UnrestrictedClear UnrestrictedPolicy = "clear"
	// UnrestrictedPreserve leaves the tagged list as NetBox has it.
	UnrestrictedPreserve UnrestrictedPolicy = "preserve"
)

// ParseUnrestrictedPolicy parses a policy name; "" selects the default.
func ParseUnrestrictedPolicy(s string) (UnrestrictedPolicy, error) {
	switch UnrestrictedPolicy(s) {
	case "":
		return UnrestrictedClear, nil
	case UnrestrictedClear, UnrestrictedPreserve:
		return UnrestrictedPolicy(s), nil
	}
	return "", fmt.Errorf("unknown unrestricted trunk policy %q (valid: clear, preserve)", s)
}

// Options tune the engine.
type Options struct {
	Unrestricted UnrestrictedPolicy
}

// Engine computes change operations.
type Engine struct {
	opts Options
}

// NewEngine creates an engine. Zero options select the defaults.
func NewEngine(opts Options) *Engine {
	if opts.Unrestricted == "" {
		opts.Unrestricted = UnrestrictedClear
	}
	return &Engine{opts: opts}
}

var defaultEngine = NewEngine(Options{})

// Interface reconciles one interface with the default options.
func Interface(local *model.ParsedInterface, remote *model.RemoteInterface, table model.VLANTable) (*model.ChangeOperation, error) {
	return defaultEngine.Interface(local, remote, table)
}

// Interface returns the operation that makes remote match local, or nil
// when they already agree. Errors are reserved for nil inputs.
func (e *Engine) Interface(local *model.ParsedInterface, remote *model.RemoteInterface, table model.VLANTable) (*model.ChangeOperation, error) {
	if local == nil || remote == nil {
		return nil, ErrNilInput
	}
	if table == nil {
		return nil, ErrNilVLANTable
	}

	op := model.NewChangeOperation(remote.ID, local.Name)

	if local.Enabled != remote.Enabled {
		op.SetEnabled(local.Enabled)
	}

	if local.Description != nil && *local.Description != remote.Description {
		op.SetDescription(*local.Description)
	}

	// Channel members take their VLANs from the port-channel.
	if !local.IsChannelMember() {
		e.reconcileVLANs(op, local, remote, table)
	}

	if op.IsEmpty() {
		return nil, nil
	}
	return op, nil
}

func (e *Engine) reconcileVLANs(op *model.ChangeOperation, local *model.ParsedInterface, remote *model.RemoteInterface, table model.VLANTable) {
	mode := local.Mode.RemoteMode()
	if mode != remote.Mode {
		op.SetMode(mode)
	}

	current := remote.UntaggedVLANID()

	switch local.Mode {
	case model.ModeTrunk:
		var native *int
		if local.NativeVLAN != nil {
			if id, ok := table.Resolve(*local.NativeVLAN); ok {
				native = &id
			}
		}
		if !equalIDPtr(native, current) {
			op.SetUntaggedVLAN(native)
		}

		if local.AllowedVLANs.IsUnrestricted() && e.opts.Unrestricted == UnrestrictedPreserve {
			return
		}
		target := taggedTarget(local, table)
		if !equalIDSet(target, remote.TaggedVLANIDs()) {
			op.ReplaceTaggedVLANs(target)
		}

	default:
		vid := DefaultAccessVLAN
		if local.AccessVLAN != nil {
			vid = *local.AccessVLAN
		}
		id, ok := table.Resolve(vid)
		if !ok {
			return
		}
		if current == nil || *current != id {
			op.SetUntaggedVLAN(&id)
			// An access port carries no tagged VLANs.
			op.ReplaceTaggedVLANs(nil)
		}
	}
}

// taggedTarget resolves the allowed VLANs of a trunk to NetBox ids. The
// native VLAN is never tagged and unresolvable VLANs are dropped. An
// unrestricted trunk yields no explicit ids.
func taggedTarget(local *model.ParsedInterface, table model.VLANTable) []int {
	if local.AllowedVLANs.IsUnrestricted() {
		return []int{}
	}

	seen := make(map[int]bool)
	ids := []int{}
	for _, vid := range local.AllowedVLANs.VIDs() {
		if local.NativeVLAN != nil && vid == *local.NativeVLAN {
			continue
		}
		id, ok := table.Resolve(vid)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func equalIDPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// equalIDSet compares two id lists as sets.
func equalIDSet(a, b []int) bool {
	as := make(map[int]bool, len(a))
	for _, id := range a {
		as[id] = true
	}
	bs := make(map[int]bool, len(b))
	for _, id := range b {
		bs[id] = true
	}
	if len(as) != len(bs) {
		return false
	}
	for id := range as {
		if !bs[id] {
			return false
		}
	}
	return true
}
