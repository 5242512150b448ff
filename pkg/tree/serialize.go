package tree

import (
	_ "embed"
	"strconv"
	"strings"
	"sync"

	"github.com/m-mizutani/kindred/pkg/model"
	"gopkg.in/yaml.v3"
)

//go:embed codes.yaml
var codesYAML []byte

type codeTables struct {
	Countries map[string]string `yaml:"countries"`
	States    map[string]string `yaml:"states"`
}

var loadCodes = sync.OnceValue(func() *codeTables {
	var tables codeTables
	if err := yaml.Unmarshal(codesYAML, &tables); err != nil {
		panic("tree: broken embedded code tables: " + err.Error())
	}
	return &tables
})

// Record is the renderer's view of one tree position.
type Record struct {
	Name           string    `json:"name"`
	Master         int       `json:"mp"`
	Public         int       `json:"pb"`
	Claimed        int       `json:"cl"`
	Conflict       int       `json:"pc"`
	Denied         int       `json:"ad"`
	ID             string    `json:"id"`
	BirthDate      string    `json:"bd"`
	BirthQualifier string    `json:"bc"`
	DeathDate      string    `json:"dd"`
	DeathQualifier string    `json:"dc"`
	BirthLocation  string    `json:"bl"`
	DeathLocation  string    `json:"dl"`
	Group          string    `json:"gp"`
	Country        string    `json:"ct"`
	State          string    `json:"st"`
	DeathCountry   string    `json:"cd"`
	DeathState     string    `json:"sd"`
	Gender         string    `json:"gd"`
	Living         string    `json:"lv"`
	Children       []*Record `json:"children,omitempty"`
}

const noCode = "0"

// interner assigns compact codes to place names in order of appearance.
type interner struct {
	countries map[string]string
	states    map[string]string
}

func newInterner() *interner {
	return &interner{
		countries: make(map[string]string),
		states:    make(map[string]string),
	}
}

func (x *interner) country(name string) string {
	if name == "" {
		return noCode
	}
	return intern(x.countries, NormalizeCountry(name))
}

func (x *interner) state(name string) string {
	if name == "" {
		return noCode
	}
	return intern(x.states, NormalizeState(name))
}

func intern(table map[string]string, key string) string {
	if code, ok := table[key]; ok {
		return code
	}
	code := strconv.Itoa(len(table) + 1)
	table[key] = code
	return code
}

// NormalizeCountry maps a country name to its ISO code where known. Historical
// qualifiers such as "(Present)" are dropped first.
func NormalizeCountry(name string) string {
	if len(name) > 2 {
		name = strings.TrimSpace(strings.ReplaceAll(name, "(", ""))
		name = strings.TrimSpace(strings.ReplaceAll(name, ")", ""))
		name = strings.TrimSpace(strings.ReplaceAll(name, "Present", ""))
		if code, ok := loadCodes().Countries[name]; ok {
			return code
		}
		return name
	}
	if name == "UK" {
		return "GB"
	}
	return name
}

// NormalizeState expands a two letter state abbreviation where known.
func NormalizeState(name string) string {
	if len(name) == 2 {
		if full, ok := loadCodes().States[name]; ok {
			return full
		}
	}
	return name
}

// Serialize renders t down to depth generations below the root. A profile
// already on the path from the root is not descended into again.
func Serialize(t *Tree, depth int) *Record {
	if t == nil || t.Len() == 0 {
		return nil
	}
	s := &serializer{
		tree:  t,
		depth: depth,
		codes: newInterner(),
		path:  make(map[model.ProfileID]bool),
	}
	return s.walk(t.Root(), 0)
}

type serializer struct {
	tree  *Tree
	depth int
	codes *interner
	path  map[model.ProfileID]bool
}

func (s *serializer) walk(idx, level int) *Record {
	n := s.tree.Node(idx)
	rec := s.record(n)

	id := n.ProfileID()
	if id != "" {
		s.path[id] = true
		defer delete(s.path, id)
	}

	if level >= s.depth {
		return rec
	}
	for _, c := range n.Children {
		if cid := s.tree.Node(c).ProfileID(); cid != "" && s.path[cid] {
			continue
		}
		rec.Children = append(rec.Children, s.walk(c, level+1))
	}
	return rec
}

func (s *serializer) record(n *Node) *Record {
	rec := &Record{
		Country:      noCode,
		State:        noCode,
		DeathCountry: noCode,
		DeathState:   noCode,
		Living:       "0",
	}

	switch n.Kind {
	case KindBlank:
		rec.Gender = "0"
		return rec
	case KindDenied:
		rec.Gender = "3"
		rec.Conflict = 1
		rec.Denied = 1
		return rec
	}

	p := n.Person
	rec.Name = strings.ReplaceAll(p.Name, `"`, "'")
	rec.Master = flag(p.Master)
	rec.Public = flag(p.Public)
	rec.Claimed = flag(p.Claimed)
	if n.Conflict || (p.Message != model.MessageNone && p.Message != model.MessageAccessDenied) {
		rec.Conflict = 1
	}
	rec.ID = string(p.ID)
	rec.Group = n.Group
	rec.Living = strconv.Itoa(flag(p.Living))

	switch p.Gender {
	case model.GenderFemale:
		rec.Gender = "1"
	case model.GenderMale:
		rec.Gender = "2"
	default:
		rec.Gender = "3"
	}

	rec.BirthDate = p.Birth.Date
	rec.BirthQualifier = p.Birth.Qualifier
	rec.BirthLocation = p.Birth.Location
	rec.Country = s.codes.country(p.Birth.Country)
	rec.State = s.codes.state(p.Birth.State)

	if !p.Living {
		rec.DeathDate = p.Death.Date
		rec.DeathQualifier = p.Death.Qualifier
		rec.DeathLocation = p.Death.Location
		rec.DeathCountry = s.codes.country(p.Death.Country)
		rec.DeathState = s.codes.state(p.Death.State)
	}

	return rec
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
