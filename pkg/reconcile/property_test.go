package reconcile

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/swsync-network/swsync/pkg/model"
)

var vidGen = rapid.IntRange(1, 40)

func optionalVID(t *rapid.T, label string) *int {
	if !rapid.Bool().Draw(t, label+"_set") {
		return nil
	}
	v := vidGen.Draw(t, label)
	return &v
}

func genTable(t *rapid.T) model.VLANTable {
	table := model.VLANTable{}
	for _, vid := range rapid.SliceOf(vidGen).Draw(t, "table_vids") {
		table[vid] = vid * 10
	}
	return table
}

func genLocal(t *rapid.T) *model.ParsedInterface {
	p := model.NewParsedInterface("Gi1/0/1")
	p.Enabled = rapid.Bool().Draw(t, "enabled")
	if rapid.Bool().Draw(t, "has_desc") {
		d := rapid.StringMatching(`[a-z ]{0,8}`).Draw(t, "desc")
		p.Description = &d
	}
	if rapid.IntRange(0, 4).Draw(t, "member") == 0 {
		p.ChannelGroup = intPtr(1)
	}
	if rapid.Bool().Draw(t, "trunk") {
		p.Mode = model.ModeTrunk
		p.NativeVLAN = optionalVID(t, "native")
		if rapid.Bool().Draw(t, "unrestricted") {
			p.AllowedVLANs = model.Unrestricted()
		} else {
			p.AllowedVLANs = model.Restricted(rapid.SliceOf(vidGen).Draw(t, "allowed")...)
		}
	} else {
		p.AccessVLAN = optionalVID(t, "access")
	}
	return p
}

func genRemote(t *rapid.T) model.RemoteInterface {
	r := model.RemoteInterface{
		ID:          rapid.IntRange(1, 1000).Draw(t, "id"),
		Enabled:     rapid.Bool().Draw(t, "remote_enabled"),
		Description: rapid.StringMatching(`[a-z ]{0,8}`).Draw(t, "remote_desc"),
		Mode:        rapid.SampledFrom([]string{"", model.RemoteModeAccess, model.RemoteModeTagged, model.RemoteModeTaggedAll}).Draw(t, "remote_mode"),
	}
	if rapid.Bool().Draw(t, "remote_untagged") {
		r.UntaggedVLAN = &model.VLANRef{ID: vidGen.Draw(t, "remote_untagged_id") * 10}
	}
	for _, id := range rapid.SliceOf(vidGen).Draw(t, "remote_tagged") {
		r.TaggedVLANs = append(r.TaggedVLANs, model.VLANRef{ID: id * 10})
	}
	return r
}

// Applying a computed operation and reconciling again must yield nothing.
func TestInterface_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := rapid.SampledFrom([]UnrestrictedPolicy{UnrestrictedClear, UnrestrictedPreserve}).Draw(t, "policy")
		engine := NewEngine(Options{Unrestricted: policy})

		local := genLocal(t)
		remote := genRemote(t)
		table := genTable(t)

		op, err := engine.Interface(local, &remote, table)
		if err != nil {
			t.Fatal(err)
		}
		if op == nil {
			return
		}
		if op.ID != remote.ID {
			t.Fatalf("op id %d, remote id %d", op.ID, remote.ID)
		}

		updated := op.ApplyTo(remote)
		again, err := engine.Interface(local, &updated, table)
		if err != nil {
			t.Fatal(err)
		}
		if again != nil {
			t.Fatalf("second pass produced %s after applying %s", again, op)
		}
	})
}

// An operation never carries a field equal to the current remote value.
func TestInterface_OnlyChangedFields(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		local := genLocal(t)
		remote := genRemote(t)
		op, err := Interface(local, &remote, genTable(t))
		if err != nil {
			t.Fatal(err)
		}
		if op == nil {
			return
		}
		if op.IsEmpty() {
			t.Fatal("empty operation emitted")
		}
		if op.Enabled != nil && *op.Enabled == remote.Enabled {
			t.Fatalf("enabled unchanged but emitted: %s", op)
		}
		if op.Description != nil && *op.Description == remote.Description {
			t.Fatalf("description unchanged but emitted: %s", op)
		}
		if op.Mode != nil && *op.Mode == remote.Mode {
			t.Fatalf("mode unchanged but emitted: %s", op)
		}
		if op.ClearUntaggedVLAN && remote.UntaggedVLAN == nil {
			t.Fatalf("clearing an absent untagged VLAN: %s", op)
		}
		if op.UntaggedVLAN != nil && remote.UntaggedVLAN != nil && *op.UntaggedVLAN == remote.UntaggedVLAN.ID {
			t.Fatalf("untagged VLAN unchanged but emitted: %s", op)
		}
		if op.SetTaggedVLANs && equalIDSet(op.TaggedVLANs, remote.TaggedVLANIDs()) {
			// An access port that changes its untagged VLAN always clears
			// the tagged list, even one that is already empty.
			accessClear := local.Mode == model.ModeAccess && op.HasUntaggedVLANChange() && len(op.TaggedVLANs) == 0
			if !accessClear {
				t.Fatalf("tagged VLANs unchanged but emitted: %s", op)
			}
		}
	})
}
