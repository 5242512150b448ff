package model

// RoleFilter selects which derived relatives a fragment keeps.
type RoleFilter struct {
	Parents  bool
	Siblings bool
	Children bool
	Spouses  bool
	Focus    bool
}

var (
	FilterParents         = RoleFilter{Parents: true}
	FilterChildren        = RoleFilter{Children: true}
	FilterParentsSiblings = RoleFilter{Parents: true, Siblings: true}
)

// Allows reports whether role passes the filter.
func (f RoleFilter) Allows(role Role) bool {
	switch {
	case role == RoleFocus:
		return f.Focus
	case role.IsParent():
		return f.Parents
	case role.IsSibling():
		return f.Siblings
	case role.IsChild():
		return f.Children
	case role.IsSpouse():
		return f.Spouses
	}
	return false
}

// AdoptMode controls how adopted parents are selected.
type AdoptMode int

const (
	// AdoptAll returns every parent.
	AdoptAll AdoptMode = iota + 1
	// AdoptNatural returns non-adopted parents, falling back to adopted ones.
	AdoptNatural
	// AdoptOnly returns adopted parents when there are any.
	AdoptOnly
)

// FamilyFragment is the structure derived from one fetched payload.
type FamilyFragment struct {
	Focus     *Relative
	Relatives []*Relative
	Unions    []*Union
}

// FocusID returns the id of the focus, or "" when the payload had none.
func (f *FamilyFragment) FocusID() ProfileID {
	if f == nil || f.Focus == nil {
		return ""
	}
	return f.Focus.ID
}

func (f *FamilyFragment) Parents(mode AdoptMode) []*Relative {
	var natural, adopted []*Relative
	for _, r := range f.Relatives {
		if !r.Role.IsParent() {
			continue
		}
		if mode == AdoptAll || !r.Adopted {
			natural = append(natural, r)
		} else {
			adopted = append(adopted, r)
		}
	}

	if mode == AdoptOnly && len(adopted) > 0 {
		return adopted
	}
	if len(natural) == 0 {
		return adopted
	}
	return natural
}

func (f *FamilyFragment) Siblings() []*Relative {
	return f.collect(Role.IsSibling)
}

func (f *FamilyFragment) Children() []*Relative {
	return f.collect(Role.IsChild)
}

func (f *FamilyFragment) Spouses() []*Relative {
	return f.collect(Role.IsSpouse)
}

// BranchGroup returns parents, siblings and any relative carrying a message.
func (f *FamilyFragment) BranchGroup() []*Relative {
	var out []*Relative
	for _, r := range f.Relatives {
		if r.Role.IsParent() || r.Role.IsSibling() || r.Message != MessageNone {
			out = append(out, r)
		}
	}
	return out
}

func (f *FamilyFragment) collect(pred func(Role) bool) []*Relative {
	var out []*Relative
	for _, r := range f.Relatives {
		if pred(r.Role) {
			out = append(out, r)
		}
	}
	return out
}
