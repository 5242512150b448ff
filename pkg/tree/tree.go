package tree

import (
	"strconv"

	"github.com/m-mizutani/kindred/pkg/model"
)

type Kind int

const (
	KindPerson Kind = iota
	// KindBlank stands for an unknown ancestor.
	KindBlank
	// KindDenied stands for an ancestor hidden by privacy settings.
	KindDenied
)

// Node is one position in the tree. The same profile may occupy several nodes
// when lines converge.
type Node struct {
	Kind     Kind
	Person   *model.Relative
	Parent   int
	Children []int
	Group    string
	Conflict bool
}

// ProfileID returns the id of the person at n, or "" for placeholders.
func (n *Node) ProfileID() model.ProfileID {
	if n.Kind != KindPerson || n.Person == nil {
		return ""
	}
	return n.Person.ID
}

// Tree is an arena of nodes. Node 0 is the root; parents are plain indexes.
type Tree struct {
	nodes     []*Node
	byProfile map[model.ProfileID][]int
	lastGroup int
}

func New(root *model.Relative) *Tree {
	t := &Tree{
		byProfile: make(map[model.ProfileID][]int),
	}
	t.add(-1, KindPerson, root)
	return t
}

// Root is the index of the root node.
func (t *Tree) Root() int { return 0 }

func (t *Tree) Len() int { return len(t.nodes) }

func (t *Tree) Node(i int) *Node {
	if i < 0 || i >= len(t.nodes) {
		return nil
	}
	return t.nodes[i]
}

// Occurrences lists the nodes holding profile id.
func (t *Tree) Occurrences(id model.ProfileID) []int {
	return t.byProfile[id]
}

func (t *Tree) add(parent int, kind Kind, person *model.Relative) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, &Node{
		Kind:   kind,
		Person: person,
		Parent: parent,
	})
	if parent >= 0 {
		t.nodes[parent].Children = append(t.nodes[parent].Children, idx)
	}
	if kind == KindPerson && person != nil {
		t.byProfile[person.ID] = append(t.byProfile[person.ID], idx)
	}
	return idx
}

// newGroup issues a lineage group id. Ids are never reused within a tree.
func (t *Tree) newGroup() string {
	t.lastGroup++
	return strconv.Itoa(t.lastGroup)
}
