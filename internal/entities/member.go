// Package entities contains core business entities.
package entities

// MemberRole enumerates team roles.
type MemberRole string

const (
	// RoleOwner administers the team.
	RoleOwner MemberRole = "owner"
	// RoleMember builds and runs agents.
	RoleMember MemberRole = "member"
)

// Member is a domain representation of a team member.
type Member struct {
	ID     string
	TeamID string
	Email  string
	Role   MemberRole
	Active bool
}
