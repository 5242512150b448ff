package model

import "encoding/json"

type Role string

const (
	RoleFather   Role = "father"
	RoleMother   Role = "mother"
	RoleParent   Role = "parent"
	RoleHusband  Role = "husband"
	RoleWife     Role = "wife"
	RoleSpouse   Role = "spouse"
	RolePartner  Role = "partner"
	RoleSon      Role = "son"
	RoleDaughter Role = "daughter"
	RoleChild    Role = "child"
	RoleBrother  Role = "brother"
	RoleSister   Role = "sister"
	RoleSibling  Role = "sibling"
	RoleFocus    Role = "focus"
	RoleUnknown  Role = "unknown"
)

func (r Role) IsParent() bool {
	return r == RoleFather || r == RoleMother || r == RoleParent
}

func (r Role) IsSibling() bool {
	return r == RoleBrother || r == RoleSister || r == RoleSibling
}

func (r Role) IsChild() bool {
	return r == RoleSon || r == RoleDaughter || r == RoleChild
}

func (r Role) IsSpouse() bool {
	return r == RoleHusband || r == RoleWife || r == RoleSpouse || r == RolePartner
}

// FocusRole is the role given to the focus of a fragment so that its title one
// generation up reads as a parent of the previous generation.
func FocusRole(g Gender) Role {
	if g == GenderMale {
		return RoleFather
	}
	return RoleMother
}

// EdgeRel is the raw role of a profile inside a union.
type EdgeRel string

const (
	EdgeRelPartner EdgeRel = "partner"
	EdgeRelChild   EdgeRel = "child"
)

type UnionStatus string

const (
	UnionStatusNone     UnionStatus = ""
	UnionStatusSpouse   UnionStatus = "spouse"
	UnionStatusExSpouse UnionStatus = "ex_spouse"
	UnionStatusPartner  UnionStatus = "partner"
)

// Edge is one endpoint of a union.
type Edge struct {
	Profile ProfileID
	Rel     EdgeRel
	Union   UnionID
	Adopted bool
}

// Union is a partnership node owning the edges of its partners and children.
type Union struct {
	ID       UnionID
	Status   UnionStatus
	Edges    []Edge
	Marriage json.RawMessage
	Divorce  json.RawMessage
}

// Edge returns the edge of profile in u, if any.
func (u *Union) Edge(profile ProfileID) (Edge, bool) {
	for _, e := range u.Edges {
		if e.Profile == profile {
			return e, true
		}
	}
	return Edge{}, false
}

// Infer classifies candidate, which sits in u with candidateRel, relative to
// focus. The adopted flag is taken from the focus edge.
func (u *Union) Infer(candidate ProfileID, candidateRel EdgeRel, gender Gender, focus ProfileID) (Role, bool) {
	focusEdge, ok := u.Edge(focus)
	if !ok {
		return RoleUnknown, false
	}
	if candidate == focus {
		return RoleFocus, focusEdge.Adopted
	}
	return InferRole(candidateRel, focusEdge.Rel, u.Status, gender), focusEdge.Adopted
}

// InferRole applies the relation case table. The first matching row wins.
func InferRole(candidateRel, focusRel EdgeRel, status UnionStatus, gender Gender) Role {
	switch {
	case candidateRel == EdgeRelPartner && focusRel == EdgeRelChild:
		return byGender(gender, RoleFather, RoleMother, RoleParent)

	case candidateRel == EdgeRelPartner && focusRel == EdgeRelPartner:
		switch status {
		case UnionStatusSpouse, UnionStatusExSpouse:
			return byGender(gender, RoleHusband, RoleWife, RoleSpouse)
		case UnionStatusPartner:
			return RolePartner
		}
		return RoleUnknown

	case candidateRel == EdgeRelChild && focusRel == EdgeRelPartner:
		return byGender(gender, RoleSon, RoleDaughter, RoleChild)

	case candidateRel == EdgeRelChild && focusRel == EdgeRelChild:
		return byGender(gender, RoleBrother, RoleSister, RoleSibling)
	}
	return RoleUnknown
}

func byGender(g Gender, male, female, other Role) Role {
	switch g {
	case GenderMale:
		return male
	case GenderFemale:
		return female
	default:
		return other
	}
}
