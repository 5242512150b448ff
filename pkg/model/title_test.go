package model_test

import (
	"fmt"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kindred/pkg/model"
)

func TestTitleForBoundaries(t *testing.T) {
	testCases := []struct {
		role   model.Role
		offset int
		want   string
	}{
		{model.RoleFather, 0, "father"},
		{model.RoleMother, -1, "Selected Person"},
		{model.RoleFather, 1, "grandfather"},
		{model.RoleMother, 1, "grandmother"},
		{model.RoleFather, 2, "great grandfather"},
		{model.RoleFather, 3, "2nd great grandfather"},
		{model.RoleMother, 4, "3rd great grandmother"},
		{model.RoleMother, 5, "4th great grandmother"},
		{model.RoleFather, 12, "11th great grandfather"},
		{model.RoleFather, 13, "12th great grandfather"},
		{model.RoleFather, 14, "13th great grandfather"},
		{model.RoleFather, 22, "21st great grandfather"},
		{model.RoleMother, 23, "22nd great grandmother"},
		{model.RoleMother, 24, "23rd great grandmother"},
		{model.RoleFather, 112, "111th great grandfather"},
		{model.RoleSister, 1, "aunt"},
		{model.RoleBrother, 2, "great uncle"},
		{model.RoleSibling, 3, "2nd great aunt/uncle"},
		{model.RoleWife, 2, "great spouse"},
		{model.RolePartner, 1, "partner"},
		{model.RoleParent, 1, "aunt/uncle/grandparent"},
		{model.RoleSon, 2, "great aunt/uncle/grandparent"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s/%d", tc.role, tc.offset), func(t *testing.T) {
			gt.Equal(t, model.TitleFor(tc.role, tc.offset), tc.want)
		})
	}
}

func TestTitleForIsDeterministic(t *testing.T) {
	roles := []model.Role{
		model.RoleFather, model.RoleMother, model.RoleParent,
		model.RoleHusband, model.RoleWife, model.RoleSpouse, model.RolePartner,
		model.RoleSon, model.RoleDaughter, model.RoleChild,
		model.RoleBrother, model.RoleSister, model.RoleSibling, model.RoleFocus,
	}

	for _, role := range roles {
		for offset := -1; offset <= 40; offset++ {
			a := model.TitleFor(role, offset)
			b := model.TitleFor(role, offset)
			gt.Equal(t, a, b)
			gt.NotEqual(t, a, "")

			switch {
			case offset <= 1:
				gt.S(t, a).NotContains("great")
			case offset == 2:
				gt.S(t, a).Contains("great ")
				gt.S(t, a).NotContains("nd great")
			default:
				gt.S(t, a).Contains(model.Ordinal(offset-1) + " great ")
			}
		}
	}
}

func TestOrdinal(t *testing.T) {
	testCases := map[int]string{
		1: "1st", 2: "2nd", 3: "3rd", 4: "4th",
		11: "11th", 12: "12th", 13: "13th",
		21: "21st", 22: "22nd", 23: "23rd", 24: "24th",
		101: "101st", 111: "111th", 112: "112th", 113: "113th", 121: "121st",
	}
	for n, want := range testCases {
		gt.Equal(t, model.Ordinal(n), want)
	}
}

func TestGenerationLabel(t *testing.T) {
	gt.Equal(t, model.GenerationLabel(-1), "profile")
	gt.Equal(t, model.GenerationLabel(0), "parent")
	gt.Equal(t, model.GenerationLabel(1), "grand parent")
	gt.Equal(t, model.GenerationLabel(2), "great grandparent")
	gt.Equal(t, model.GenerationLabel(3), "2nd great grandparent")
	gt.Equal(t, model.GenerationLabel(14), "13th great grandparent")
	gt.Equal(t, model.StageLabel(0), "parent's family")
	gt.Equal(t, model.StageLabel(4), "3rd great grandparent's family")
}
