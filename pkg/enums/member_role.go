package enums

import (
	"fmt"
	"strings"
)

// MemberRole identifies the actor issuing a workflow request.
type MemberRole string

const (
	MemberRoleDonor             MemberRole = "donor"
	MemberRoleKitchenStaff      MemberRole = "kitchen_staff"
	MemberRoleDeliveryStaff     MemberRole = "delivery_staff"
	MemberRoleOrganizationOwner MemberRole = "organization_owner"
	MemberRoleOrganizationAdmin MemberRole = "organization_admin"
	MemberRolePlatformAdmin     MemberRole = "platform_admin"
)

var knownMemberRoles = map[MemberRole]struct{}{
	MemberRoleDonor:             {},
	MemberRoleKitchenStaff:      {},
	MemberRoleDeliveryStaff:     {},
	MemberRoleOrganizationOwner: {},
	MemberRoleOrganizationAdmin: {},
	MemberRolePlatformAdmin:     {},
}

func (m MemberRole) String() string {
	return string(m)
}

func (m MemberRole) IsValid() bool {
	_, ok := knownMemberRoles[m]
	return ok
}

func (m MemberRole) IsPlatformAdmin() bool {
	return m == MemberRolePlatformAdmin
}

// ParseMemberRole accepts any casing and surrounding whitespace.
func ParseMemberRole(value string) (MemberRole, error) {
	role := MemberRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", value)
	}
	return role, nil
}
