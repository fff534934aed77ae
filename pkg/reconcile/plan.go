package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/runconfig"
)

// Plan is the set of updates computed for one device.
type Plan struct {
	Device     string                   `json:"device"`
	Operations []*model.ChangeOperation `json:"operations"`

	// Missing lists NetBox interfaces with no block in the running
	// configuration. They are left untouched.
	Missing []string `json:"missing,omitempty"`

	// Rejected lists NetBox interfaces whose running-config block failed
	// to parse. They are left untouched and reported apart from Missing.
	Rejected []string `json:"rejected,omitempty"`

	// Unmodelled lists running-config interfaces with no NetBox record.
	Unmodelled []string `json:"unmodelled,omitempty"`

	// Unchanged counts interfaces that already match.
	Unchanged int `json:"unchanged"`
}

// IsEmpty returns true if the plan has no operations.
func (p *Plan) IsEmpty() bool {
	return len(p.Operations) == 0
}

// String returns a human-readable list of the planned updates.
func (p *Plan) String() string {
	if p.IsEmpty() {
		return "No changes"
	}
	var sb strings.Builder
	for _, op := range p.Operations {
		fmt.Fprintf(&sb, "  [MOD] %s\n", op)
	}
	return sb.String()
}

// Device correlates NetBox records with the parsed configuration by
// canonical interface name and reconciles each pair. Operations follow the
// order of remotes.
func (e *Engine) Device(device string, cfg *runconfig.Config, remotes []model.RemoteInterface, table model.VLANTable) (*Plan, error) {
	if cfg == nil {
		return nil, ErrNilInput
	}
	if table == nil {
		return nil, ErrNilVLANTable
	}

	plan := &Plan{Device: device, Operations: []*model.ChangeOperation{}}
	matched := make(map[string]bool, len(remotes))
	rejected := make(map[string]bool, len(cfg.Errors))
	for _, be := range cfg.Errors {
		rejected[be.Interface] = true
	}

	for i := range remotes {
		remote := &remotes[i]
		name := model.NormalizeInterfaceName(remote.Name)
		local, ok := cfg.Interfaces[name]
		if !ok {
			if rejected[name] {
				plan.Rejected = append(plan.Rejected, name)
			} else {
				plan.Missing = append(plan.Missing, name)
			}
			continue
		}
		matched[name] = true

		op, err := e.Interface(local, remote, table)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", name, err)
		}
		if op == nil {
			plan.Unchanged++
			continue
		}
		plan.Operations = append(plan.Operations, op)
	}

	for name := range cfg.Interfaces {
		if !matched[name] {
			plan.Unmodelled = append(plan.Unmodelled, name)
		}
	}
	sort.Strings(plan.Unmodelled)

	return plan, nil
}

// Device plans a device with the default options.
func Device(device string, cfg *runconfig.Config, remotes []model.RemoteInterface, table model.VLANTable) (*Plan, error) {
	return defaultEngine.Device(device, cfg, remotes, table)
}
