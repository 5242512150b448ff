package model

import "strings"

// ProfileID identifies a profile on the remote graph, e.g. "profile-6000000012345678901".
type ProfileID string

// UnionID identifies a union node, e.g. "union-6000000001234567890".
type UnionID string

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// ParseGender normalizes a raw gender value. Anything but male/female is unknown.
func ParseGender(s string) Gender {
	switch strings.ToLower(s) {
	case "male":
		return GenderMale
	case "female":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// Message is a diagnostic tag attached to a relative or a match.
type Message string

const (
	MessageNone            Message = ""
	MessageAccessDenied    Message = "Access Denied"
	MessageMergePending    Message = "Merge Pending"
	MessageParentConflict  Message = "Parent Conflict"
	MessageMasterProfile   Message = "Master Profile"
	MessageNonMasterPublic Message = "Non-Master Public"
	MessagePolicyMatch     Message = "Policy Match"
)

// Event is a birth or death event flattened for display.
type Event struct {
	Date      string // yyyy-mm-dd, unknown parts kept as placeholders
	Qualifier string // "", "bf.", "af.", "bt.", optionally followed by "c."
	Location  string
	City      string
	State     string
	Country   string
}

// NewEvent returns an event with placeholder date and unknown location.
func NewEvent() Event {
	return Event{
		Date:     "yyyy-mm-dd",
		Location: "Unknown",
	}
}

// Relative is a person as seen from one focus person.
type Relative struct {
	ID      ProfileID
	Name    string
	Gender  Gender
	Role    Role
	Union   UnionID
	Status  UnionStatus
	Adopted bool

	Master       bool
	Claimed      bool
	Public       bool
	Living       bool
	MergePending bool

	Birth    Event
	Death    Event
	Projects []int64
	Message  Message
}

// Title returns the relation title of r seen from gen generations above the root.
func (r *Relative) Title(gen int) string {
	return TitleFor(r.Role, gen)
}

// Denied reports whether the remote service refused to reveal this profile.
func (r *Relative) Denied() bool {
	return r.Message == MessageAccessDenied
}

// Merge copies profile detail onto r, keeping what was derived from the union.
func (r *Relative) Merge(detail *Relative) {
	if detail == nil {
		return
	}
	if detail.Name != "" {
		r.Name = detail.Name
	}
	r.Gender = detail.Gender
	r.Master = detail.Master
	r.Claimed = detail.Claimed
	r.Public = detail.Public
	r.Living = detail.Living
	r.MergePending = detail.MergePending
	r.Birth = detail.Birth
	r.Death = detail.Death
	if detail.Projects != nil {
		r.Projects = detail.Projects
	}

	switch {
	case detail.Message == MessageAccessDenied:
		r.Message = MessageAccessDenied
	case r.Message == MessageAccessDenied:
		r.Message = MessageNone
	}
}
