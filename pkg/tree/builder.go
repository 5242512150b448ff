package tree

import (
	"github.com/m-mizutani/kindred/pkg/model"
)

type Direction string

const (
	Ancestors   Direction = "ancestors"
	Descendants Direction = "descendants"
)

const (
	MaxAncestorDepth   = 10
	MaxDescendantDepth = 15
)

// Filter is the role filter used to fetch the families of a direction.
func (d Direction) Filter() model.RoleFilter {
	if d == Descendants {
		return model.FilterChildren
	}
	return model.FilterParents
}

// MaxDepth is the deepest generation a direction may expand.
func (d Direction) MaxDepth() int {
	if d == Descendants {
		return MaxDescendantDepth
	}
	return MaxAncestorDepth
}

// Builder grows a Tree one generation at a time.
type Builder struct {
	tree      *Tree
	direction Direction
	adopt     bool
	dna       model.Gender

	frontier []int
	depth    int
	count    int
}

type BuilderOption func(*Builder)

func WithDirection(d Direction) BuilderOption {
	return func(b *Builder) {
		b.direction = d
	}
}

// WithAdopted follows adoptive parents instead of natural ones.
func WithAdopted(adopt bool) BuilderOption {
	return func(b *Builder) {
		b.adopt = adopt
	}
}

// WithDNA restricts descendants to those who can carry a marker inherited
// along the given gender line.
func WithDNA(marker model.Gender) BuilderOption {
	return func(b *Builder) {
		b.dna = marker
	}
}

func NewBuilder(root *model.Relative, opts ...BuilderOption) *Builder {
	b := &Builder{
		tree:      New(root),
		direction: Ancestors,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.frontier = []int{b.tree.Root()}
	return b
}

func (b *Builder) Tree() *Tree { return b.tree }

// Depth is the number of generations expanded so far.
func (b *Builder) Depth() int { return b.depth }

// Count is the running total of frontier positions processed.
func (b *Builder) Count() int { return b.count }

// Done reports whether nothing is left to expand.
func (b *Builder) Done() bool { return len(b.frontier) == 0 }

// Pending lists the profiles whose families must be fetched before the next
// Expand. Placeholders and denied persons need no fetch.
func (b *Builder) Pending() []model.ProfileID {
	seen := make(map[model.ProfileID]struct{})
	var ids []model.ProfileID
	for _, idx := range b.frontier {
		n := b.tree.nodes[idx]
		if n.Kind != KindPerson || n.Person.Denied() {
			continue
		}
		if _, ok := seen[n.Person.ID]; ok {
			continue
		}
		seen[n.Person.ID] = struct{}{}
		ids = append(ids, n.Person.ID)
	}
	return ids
}

// Expand grows every frontier node by one generation using families keyed by
// focus. New nodes join the next frontier only when queueNext is set.
func (b *Builder) Expand(families []*model.FamilyFragment, queueNext bool) {
	byFocus := make(map[model.ProfileID]*model.FamilyFragment, len(families))
	denied := make(map[model.ProfileID]bool)
	for _, f := range families {
		if f.Focus != nil {
			byFocus[f.Focus.ID] = f
			continue
		}
		for _, r := range f.Relatives {
			if r.Denied() {
				denied[r.ID] = true
			}
		}
	}

	current := b.frontier
	b.frontier = nil
	b.count += len(current)

	for _, idx := range current {
		n := b.tree.nodes[idx]
		switch n.Kind {
		case KindBlank:
			if b.direction == Ancestors {
				b.place(idx, KindBlank, nil, queueNext)
				b.place(idx, KindBlank, nil, queueNext)
			}

		case KindDenied:

		case KindPerson:
			if n.Person.Denied() || denied[n.Person.ID] {
				if !b.hasDeniedChild(idx) {
					b.place(idx, KindDenied, nil, queueNext)
				}
				continue
			}
			if b.direction == Descendants {
				b.expandDescendants(idx, byFocus[n.Person.ID], queueNext)
			} else {
				b.expandAncestors(idx, byFocus[n.Person.ID], queueNext)
			}
		}
	}

	b.depth++
}

func (b *Builder) expandAncestors(idx int, f *model.FamilyFragment, queueNext bool) {
	var parents []*model.Relative
	if f != nil {
		mode := model.AdoptNatural
		if b.adopt {
			mode = model.AdoptOnly
		}
		parents = f.Parents(mode)
	}

	if len(parents) > 2 {
		b.tree.nodes[idx].Conflict = true
	}

	var father, mother *model.Relative
	for _, p := range parents {
		switch p.Gender {
		case model.GenderMale:
			father = p
		case model.GenderFemale:
			mother = p
		default:
			if father == nil {
				father = p
			} else if mother == nil {
				mother = p
			}
		}
	}

	for _, p := range []*model.Relative{father, mother} {
		if p != nil {
			b.attach(idx, p, queueNext)
		} else if len(b.tree.nodes[idx].Children) < 2 {
			b.place(idx, KindBlank, nil, queueNext)
		}
	}
}

func (b *Builder) expandDescendants(idx int, f *model.FamilyFragment, queueNext bool) {
	if f == nil {
		return
	}
	carrier := b.tree.nodes[idx].Person
	for _, child := range f.Children() {
		if !b.admit(carrier, child) {
			continue
		}
		b.attach(idx, child, queueNext)
	}
}

// admit applies the DNA filter. A child of the marker gender inherits the
// marker only from a carrier of the same gender; a child of the other gender
// is kept only while the carrier is a living female.
func (b *Builder) admit(carrier, child *model.Relative) bool {
	if b.dna == "" {
		return true
	}
	if child.Gender == b.dna {
		return carrier.Gender == b.dna
	}
	return carrier.Living && carrier.Gender == model.GenderFemale
}

// attach places r under the node at idx, tagging converging lines with a
// shared lineage group.
func (b *Builder) attach(idx int, r *model.Relative, queueNext bool) {
	t := b.tree
	child := t.nodes[idx]

	existing := t.byProfile[r.ID]
	group := child.Group
	if len(existing) > 0 {
		if group == "" {
			group = t.newGroup()
		}
		for _, occ := range existing {
			t.nodes[occ].Group = group
			if p := t.nodes[occ].Parent; p >= 0 {
				t.nodes[p].Group = group
			}
		}
		child.Group = group
	}

	pos := b.place(idx, KindPerson, r, queueNext && !r.Denied())
	t.nodes[pos].Group = group

	if r.Denied() {
		b.place(pos, KindDenied, nil, queueNext)
	}
}

func (b *Builder) place(parent int, kind Kind, r *model.Relative, queue bool) int {
	pos := b.tree.add(parent, kind, r)
	if queue {
		b.frontier = append(b.frontier, pos)
	}
	return pos
}

func (b *Builder) hasDeniedChild(idx int) bool {
	for _, c := range b.tree.nodes[idx].Children {
		if b.tree.nodes[c].Kind == KindDenied {
			return true
		}
	}
	return false
}
