package model

import "strconv"

const selectedPerson = "Selected Person"

// TitleFor derives the relation title of a generation-0 role seen from offset
// generations above the root. Offset 0 keeps the role, -1 is the selected person.
func TitleFor(role Role, offset int) string {
	switch offset {
	case 0:
		return string(role)
	case -1:
		return selectedPerson
	}

	var base string
	switch role {
	case RoleSister:
		base = "aunt"
	case RoleBrother:
		base = "uncle"
	case RoleSibling:
		base = "aunt/uncle"
	case RoleFather:
		base = "grandfather"
	case RoleMother:
		base = "grandmother"
	case RoleWife, RoleHusband, RoleSpouse:
		base = "spouse"
	case RolePartner:
		base = "partner"
	default:
		base = "aunt/uncle/grandparent"
	}

	return greatPrefix(offset-1) + base
}

// greatPrefix renders "", "great ", "2nd great ", "3rd great ", ...
func greatPrefix(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "great "
	default:
		return Ordinal(n) + " great "
	}
}

// Ordinal formats n with its English ordinal suffix.
func Ordinal(n int) string {
	s := strconv.Itoa(n)
	if m := n % 100; m >= 11 && m <= 13 {
		return s + "th"
	}
	switch n % 10 {
	case 1:
		return s + "st"
	case 2:
		return s + "nd"
	case 3:
		return s + "rd"
	}
	return s + "th"
}

// GenerationLabel names the ancestors being expanded at generation gen.
func GenerationLabel(gen int) string {
	switch {
	case gen < 0:
		return "profile"
	case gen == 0:
		return "parent"
	case gen == 1:
		return "grand parent"
	case gen == 2:
		return "great grandparent"
	default:
		return Ordinal(gen-1) + " great grandparent"
	}
}

// StageLabel is the progress label shown while generation gen is crawled.
func StageLabel(gen int) string {
	return GenerationLabel(gen) + "'s family"
}
