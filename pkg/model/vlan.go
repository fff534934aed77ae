package model

// VLANTable translates a site VLAN number (the VID seen in device
// configuration) to the NetBox VLAN object id.
type VLANTable map[int]int

// Resolve returns the NetBox id for vid.
func (t VLANTable) Resolve(vid int) (int, bool) {
	id, ok := t[vid]
	return id, ok
}

// ResolveAll resolves every vid in order, dropping the ones that are not in
// the table.
func (t VLANTable) ResolveAll(vids []int) []int {
	ids := make([]int, 0, len(vids))
	for _, vid := range vids {
		if id, ok := t[vid]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
