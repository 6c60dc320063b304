package field

import "slices"

// Override replaces the required flag and permission of one field, as set on
// the parent form's relation controls.
type Override struct {
	FieldID    string
	Required   bool
	Permission Permission
}

// OwnerFieldID is the system owner column; it is always view-only in a sub-table.
const OwnerFieldID = "ownerid"

// Arrange orders and normalizes the definitions shown by a sub-table.
//
// Columns follow order when it is non-empty, otherwise show; definitions not
// named in either keep their relative order at the end. Fields absent from
// show are hidden (permission "000"); shown fields always get the addable
// flag so new rows can be filled in.
func Arrange(defs []Definition, show, order []string, overrides []Override) []Definition {
	seq := order
	if len(seq) == 0 {
		seq = show
	}
	pos := make(map[string]int, len(seq))
	for i, id := range seq {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}

	out := make([]Definition, len(defs))
	copy(out, defs)
	slices.SortStableFunc(out, func(a, b Definition) int {
		pa, oka := pos[a.ID]
		pb, okb := pos[b.ID]
		switch {
		case oka && okb:
			return pa - pb
		case oka:
			return -1
		case okb:
			return 1
		}
		return 0
	})

	byID := make(map[string]Override, len(overrides))
	for _, o := range overrides {
		byID[o.FieldID] = o
	}

	for i := range out {
		d := &out[i]
		if o, ok := byID[d.ID]; ok {
			d.Required = o.Required
			d.Permission = o.Permission
		}
		if !slices.Contains(show, d.ID) {
			d.Permission = PermissionNone
		} else {
			p := d.Permission
			if p == "" {
				p = PermissionAll
			}
			d.Permission = p.With(2, true)
		}
		if d.ID == OwnerFieldID {
			d.Permission = PermissionViewOnly
		}
	}
	return out
}

// Columns returns the ids of visible, non-nested fields in order.
func Columns(defs []Definition) []string {
	var ids []string
	for _, d := range defs {
		if d.Type == TypeSubTable {
			continue
		}
		if d.Permission != "" && !d.Permission.Visible() {
			continue
		}
		ids = append(ids, d.ID)
	}
	return ids
}
