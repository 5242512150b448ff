package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kindred/pkg/model"
)

func rel(id string, role model.Role, adopted bool) *model.Relative {
	return &model.Relative{ID: model.ProfileID(id), Role: role, Adopted: adopted}
}

func TestParentsAdoptModes(t *testing.T) {
	mixed := &model.FamilyFragment{
		Relatives: []*model.Relative{
			rel("bio-dad", model.RoleFather, false),
			rel("bio-mom", model.RoleMother, false),
			rel("adopt-dad", model.RoleFather, true),
			rel("sis", model.RoleSister, false),
		},
	}
	adoptedOnly := &model.FamilyFragment{
		Relatives: []*model.Relative{
			rel("adopt-dad", model.RoleFather, true),
			rel("adopt-mom", model.RoleMother, true),
		},
	}
	naturalOnly := &model.FamilyFragment{
		Relatives: []*model.Relative{
			rel("bio-dad", model.RoleFather, false),
		},
	}

	gt.A(t, mixed.Parents(model.AdoptAll)).Length(3)
	gt.A(t, mixed.Parents(model.AdoptNatural)).Length(2)
	gt.A(t, mixed.Parents(model.AdoptOnly)).Length(1)
	gt.Equal(t, mixed.Parents(model.AdoptOnly)[0].ID, model.ProfileID("adopt-dad"))

	gt.A(t, adoptedOnly.Parents(model.AdoptNatural)).Length(2)
	gt.A(t, adoptedOnly.Parents(model.AdoptOnly)).Length(2)

	gt.A(t, naturalOnly.Parents(model.AdoptOnly)).Length(1)
	gt.A(t, naturalOnly.Parents(model.AdoptNatural)).Length(1)
}

func TestBranchGroup(t *testing.T) {
	denied := rel("private-uncle", model.RoleSon, false)
	denied.Message = model.MessageAccessDenied

	f := &model.FamilyFragment{
		Relatives: []*model.Relative{
			rel("dad", model.RoleFather, false),
			rel("bro", model.RoleBrother, false),
			rel("wife", model.RoleWife, false),
			denied,
		},
	}

	group := f.BranchGroup()
	gt.A(t, group).Length(3)
	gt.A(t, f.Spouses()).Length(1)
	gt.A(t, f.Siblings()).Length(1)
	gt.A(t, f.Children()).Length(1)
}

func TestRoleFilter(t *testing.T) {
	gt.True(t, model.FilterParents.Allows(model.RoleMother))
	gt.False(t, model.FilterParents.Allows(model.RoleSister))
	gt.True(t, model.FilterParentsSiblings.Allows(model.RoleSibling))
	gt.True(t, model.FilterChildren.Allows(model.RoleDaughter))
	gt.False(t, model.FilterChildren.Allows(model.RoleFocus))
	gt.True(t, model.RoleFilter{Focus: true}.Allows(model.RoleFocus))
	gt.True(t, model.RoleFilter{Spouses: true}.Allows(model.RolePartner))
	gt.False(t, model.RoleFilter{Parents: true, Siblings: true, Children: true, Spouses: true}.Allows(model.RoleUnknown))
}

func TestRelativeMerge(t *testing.T) {
	r := &model.Relative{
		ID:      "profile-1",
		Role:    model.RoleMother,
		Union:   "union-9",
		Adopted: true,
		Message: model.MessageAccessDenied,
	}
	r.Merge(&model.Relative{
		ID:     "profile-1",
		Name:   "Jane Doe",
		Gender: model.GenderFemale,
		Public: true,
		Living: false,
		Birth:  model.Event{Date: "1901-02-03", Location: "Boston, Massachusetts, United States"},
	})

	gt.Equal(t, r.Name, "Jane Doe")
	gt.Equal(t, r.Role, model.RoleMother)
	gt.Equal(t, r.Union, model.UnionID("union-9"))
	gt.True(t, r.Adopted)
	gt.Equal(t, r.Message, model.MessageNone)
	gt.Equal(t, r.Birth.Date, "1901-02-03")
	gt.Equal(t, r.Title(2), "great grandmother")
}

func TestRunStateValidate(t *testing.T) {
	gt.NoError(t, model.RunStateRunning.Validate())
	gt.Error(t, model.RunState("paused").Validate())
	gt.True(t, model.RunStateFailed.Terminal())
	gt.False(t, model.RunStateRunning.Terminal())
}
