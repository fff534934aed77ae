package runconfig

import (
	"strings"

	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/util"
)

// parseAllowedVLANs unions every "switchport trunk allowed vlan" directive
// of a trunk block. "add" is treated like a plain list. "none", "remove"
// and "except" lists contribute no VLANs; "all" marks the trunk
// unrestricted unless another directive names concrete VLANs.
func parseAllowedVLANs(b block) (model.AllowedVLANs, *BlockError) {
	directives := b.captureAll(allowedVLANRegexp)
	if len(directives) == 0 {
		return model.Unrestricted(), nil
	}

	var vids []int
	sawAll := false

	for _, d := range directives {
		fields := strings.Fields(d)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "all":
			sawAll = true
			continue
		case "none", "remove", "except":
			continue
		case "add":
			fields = fields[1:]
		}

		list := strings.Join(fields, "")
		if list == "" {
			continue
		}
		expanded, err := util.ExpandVLANRange(list)
		if err != nil {
			return model.AllowedVLANs{}, &BlockError{
				Line: "switchport trunk allowed vlan " + d,
				Err:  err,
			}
		}
		vids = append(vids, expanded...)
	}

	if len(vids) == 0 && sawAll {
		return model.Unrestricted(), nil
	}
	return model.Restricted(vids...), nil
}
