package reconcile

import (
	"errors"
	"reflect"
	"testing"

	"github.com/swsync-network/swsync/pkg/model"
)

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

var testTable = model.VLANTable{1: 11, 10: 100, 20: 200, 30: 300, 99: 990}

func trunk(native *int, allowed model.AllowedVLANs) *model.ParsedInterface {
	p := model.NewParsedInterface("Gi1/0/1")
	p.Mode = model.ModeTrunk
	p.NativeVLAN = native
	p.AllowedVLANs = allowed
	return p
}

func access(vid *int) *model.ParsedInterface {
	p := model.NewParsedInterface("Gi1/0/1")
	p.AccessVLAN = vid
	return p
}

func TestInterface_NilInputs(t *testing.T) {
	remote := &model.RemoteInterface{ID: 1}
	if _, err := Interface(access(nil), remote, nil); !errors.Is(err, ErrNilVLANTable) {
		t.Errorf("nil table error = %v, want ErrNilVLANTable", err)
	}
	if _, err := Interface(nil, remote, testTable); !errors.Is(err, ErrNilInput) {
		t.Errorf("nil local error = %v, want ErrNilInput", err)
	}
	if _, err := Interface(access(nil), nil, testTable); !errors.Is(err, ErrNilInput) {
		t.Errorf("nil remote error = %v, want ErrNilInput", err)
	}
}

func TestInterface_NoChange(t *testing.T) {
	remote := &model.RemoteInterface{
		ID: 7, Enabled: true, Mode: model.RemoteModeAccess,
		UntaggedVLAN: &model.VLANRef{ID: 200},
	}
	op, err := Interface(access(intPtr(20)), remote, testTable)
	if err != nil {
		t.Fatal(err)
	}
	if op != nil {
		t.Errorf("expected no operation, got %s", op)
	}
}

func TestInterface_Enabled(t *testing.T) {
	local := access(intPtr(20))
	local.Enabled = false
	remote := &model.RemoteInterface{ID: 7, Enabled: true, Mode: model.RemoteModeAccess, UntaggedVLAN: &model.VLANRef{ID: 200}}

	op, _ := Interface(local, remote, testTable)
	if op == nil || op.Enabled == nil || *op.Enabled {
		t.Fatalf("op = %v, want enabled=false", op)
	}
	if got := op.Fields(); !reflect.DeepEqual(got, []string{model.FieldEnabled}) {
		t.Errorf("Fields() = %v", got)
	}
	if op.ID != 7 {
		t.Errorf("ID = %d, want 7", op.ID)
	}
}

func TestInterface_Description(t *testing.T) {
	base := model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeAccess, UntaggedVLAN: &model.VLANRef{ID: 11}}

	tests := []struct {
		name       string
		local      *string
		remoteDesc string
		want       *string
	}{
		{"absent locally never clears", nil, "documented", nil},
		{"same", strPtr("uplink"), "uplink", nil},
		{"differs", strPtr("uplink"), "old", strPtr("uplink")},
		{"remote empty", strPtr("new"), "", strPtr("new")},
		{"local empty clears", strPtr(""), "old", strPtr("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := access(nil)
			local.Description = tt.local
			remote := base
			remote.Description = tt.remoteDesc

			op, _ := Interface(local, &remote, testTable)
			var got *string
			if op != nil {
				got = op.Description
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Description change = %v, want %v", deref(got), deref(tt.want))
			}
		})
	}
}

func TestInterface_AccessDefaultVLAN(t *testing.T) {
	remote := &model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeAccess}
	op, _ := Interface(access(nil), remote, testTable)
	if op == nil || op.UntaggedVLAN == nil || *op.UntaggedVLAN != 11 {
		t.Fatalf("op = %v, want untagged_vlan=11 (VLAN 1)", op)
	}
}

func TestInterface_AccessMoveClearsTagged(t *testing.T) {
	tests := []struct {
		name   string
		tagged []model.VLANRef
	}{
		{"tagged present", []model.VLANRef{{ID: 100}}},
		{"already empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeAccess,
				UntaggedVLAN: &model.VLANRef{ID: 200}, TaggedVLANs: tt.tagged}
			op, _ := Interface(access(intPtr(30)), remote, testTable)
			if op == nil {
				t.Fatal("no operation for an access VLAN move")
			}
			want := []string{model.FieldUntaggedVLAN, model.FieldTaggedVLANs}
			if got := op.Fields(); !reflect.DeepEqual(got, want) {
				t.Errorf("Fields() = %v, want %v", got, want)
			}
			if len(op.TaggedVLANs) != 0 {
				t.Errorf("TaggedVLANs = %v, want empty", op.TaggedVLANs)
			}
		})
	}
}

func TestInterface_AccessUnresolvable(t *testing.T) {
	remote := &model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeAccess, UntaggedVLAN: &model.VLANRef{ID: 200}}
	op, _ := Interface(access(intPtr(555)), remote, testTable)
	if op != nil {
		t.Errorf("unresolvable access VLAN should change nothing, got %s", op)
	}
}

func TestInterface_AccessPortClearing(t *testing.T) {
	remote := &model.RemoteInterface{
		ID: 3, Enabled: true, Mode: model.RemoteModeTagged,
		UntaggedVLAN: &model.VLANRef{ID: 990},
		TaggedVLANs:  []model.VLANRef{{ID: 100}, {ID: 200}},
	}
	op, _ := Interface(access(intPtr(30)), remote, testTable)
	if op == nil {
		t.Fatal("expected an operation")
	}
	if op.Mode == nil || *op.Mode != model.RemoteModeAccess {
		t.Errorf("Mode = %v, want access", deref(op.Mode))
	}
	if op.UntaggedVLAN == nil || *op.UntaggedVLAN != 300 {
		t.Errorf("UntaggedVLAN = %v, want 300", op.UntaggedVLAN)
	}
	if !op.SetTaggedVLANs || len(op.TaggedVLANs) != 0 {
		t.Errorf("tagged = %v (set %v), want explicit empty", op.TaggedVLANs, op.SetTaggedVLANs)
	}
}

func TestInterface_NativeVLANExclusion(t *testing.T) {
	local := trunk(intPtr(10), model.Restricted(10, 20, 30))
	table := model.VLANTable{10: 100, 20: 200, 30: 300}
	remote := &model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeTagged}

	op, _ := Interface(local, remote, table)
	if op == nil {
		t.Fatal("expected an operation")
	}
	if !reflect.DeepEqual(op.TaggedVLANs, []int{200, 300}) {
		t.Errorf("TaggedVLANs = %v, want [200 300]", op.TaggedVLANs)
	}
	if op.UntaggedVLAN == nil || *op.UntaggedVLAN != 100 {
		t.Errorf("UntaggedVLAN = %v, want 100", op.UntaggedVLAN)
	}
}

func TestInterface_TrunkTaggedDropsUnresolvable(t *testing.T) {
	local := trunk(nil, model.Restricted(10, 20, 4000))
	remote := &model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeTagged,
		TaggedVLANs: []model.VLANRef{{ID: 200}, {ID: 100}}}

	op, _ := Interface(local, remote, testTable)
	if op != nil {
		t.Errorf("order-independent match should yield no op, got %s", op)
	}
}

func TestInterface_TrunkNativeClear(t *testing.T) {
	remote := &model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeTagged,
		UntaggedVLAN: &model.VLANRef{ID: 990}}

	// Unset native VLAN clears the remote untagged VLAN.
	op, _ := Interface(trunk(nil, model.Restricted()), remote, testTable)
	if op == nil || !op.ClearUntaggedVLAN {
		t.Fatalf("op = %v, want untagged_vlan=null", op)
	}

	// So does a native VLAN missing from the table.
	op, _ = Interface(trunk(intPtr(777), model.Restricted()), remote, testTable)
	if op == nil || !op.ClearUntaggedVLAN {
		t.Fatalf("op = %v, want untagged_vlan=null", op)
	}
}

func TestInterface_UnrestrictedTrunk(t *testing.T) {
	remote := &model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeTagged,
		TaggedVLANs: []model.VLANRef{{ID: 100}}}
	local := trunk(nil, model.Unrestricted())

	op, _ := Interface(local, remote, testTable)
	if op == nil || !op.SetTaggedVLANs || len(op.TaggedVLANs) != 0 {
		t.Errorf("default policy: op = %v, want tagged_vlans=[]", op)
	}

	preserve := NewEngine(Options{Unrestricted: UnrestrictedPreserve})
	op, _ = preserve.Interface(local, remote, testTable)
	if op != nil {
		t.Errorf("preserve policy: op = %s, want none", op)
	}
}

func TestInterface_ChannelMembersAreInert(t *testing.T) {
	remotes := []model.RemoteInterface{
		{ID: 1, Enabled: true},
		{ID: 2, Enabled: true, Mode: model.RemoteModeTagged, UntaggedVLAN: &model.VLANRef{ID: 5}, TaggedVLANs: []model.VLANRef{{ID: 6}}},
		{ID: 3, Enabled: true, Mode: model.RemoteModeAccess, UntaggedVLAN: &model.VLANRef{ID: 200}},
	}
	locals := []*model.ParsedInterface{
		trunk(intPtr(10), model.Restricted(10, 20)),
		access(intPtr(30)),
		trunk(nil, model.Unrestricted()),
	}

	for _, l := range locals {
		l.ChannelGroup = intPtr(1)
		for i := range remotes {
			op, err := Interface(l, &remotes[i], testTable)
			if err != nil {
				t.Fatal(err)
			}
			if op != nil && (op.Mode != nil || op.HasUntaggedVLANChange() || op.SetTaggedVLANs) {
				t.Errorf("channel member produced VLAN fields: %s", op)
			}
		}
	}
}

func TestInterface_ModeMapping(t *testing.T) {
	remote := &model.RemoteInterface{ID: 1, Enabled: true, Mode: model.RemoteModeTaggedAll}
	op, _ := Interface(trunk(nil, model.Unrestricted()), remote, testTable)
	if op == nil || op.Mode == nil || *op.Mode != model.RemoteModeTagged {
		t.Errorf("op = %v, want mode=tagged", op)
	}
}

func TestParseUnrestrictedPolicy(t *testing.T) {
	if p, err := ParseUnrestrictedPolicy(""); err != nil || p != UnrestrictedClear {
		t.Errorf("default = %q, %v", p, err)
	}
	if p, err := ParseUnrestrictedPolicy("preserve"); err != nil || p != UnrestrictedPreserve {
		t.Errorf("preserve = %q, %v", p, err)
	}
	if _, err := ParseUnrestrictedPolicy("ignore"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
