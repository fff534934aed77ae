package runconfig

import "github.com/swsync-network/swsync/pkg/model"

// modeRule maps a block predicate to the switchport mode it implies.
type modeRule struct {
	name  string
	match func(b block) bool
	mode  model.Mode
}

// modeRules are evaluated in order; the first match decides the mode. An
// explicit "switchport mode" line beats an implied one, and trunk evidence
// beats access evidence.
var modeRules = []modeRule{
	{
		name:  "explicit trunk",
		match: func(b block) bool { return b.hasLine("switchport mode trunk") },
		mode:  model.ModeTrunk,
	},
	{
		name:  "explicit access",
		match: func(b block) bool { return b.hasLine("switchport mode access") },
		mode:  model.ModeAccess,
	},
	{
		name:  "trunk allowed vlan",
		match: func(b block) bool { return b.contains("switchport trunk allowed vlan") },
		mode:  model.ModeTrunk,
	},
	{
		name:  "access vlan",
		match: func(b block) bool { return b.contains("switchport access vlan") },
		mode:  model.ModeAccess,
	},
}

// DefaultMode applies when no rule matches.
const DefaultMode = model.ModeAccess

func determineMode(b block) model.Mode {
	for _, r := range modeRules {
		if r.match(b) {
			return r.mode
		}
	}
	return DefaultMode
}
