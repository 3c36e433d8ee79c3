package shared

// Claims guarding the core platform endpoints, encoded "<type>:<value>".
const (
	ClaimRolesRead  = "read:roles"
	ClaimRolesWrite = "write:roles"

	ClaimRoleClaimsRead  = "read:role-claims"
	ClaimRoleClaimsWrite = "write:role-claims"

	ClaimUserRolesRead  = "read:user-roles"
	ClaimUserRolesWrite = "write:user-roles"
)

// CoreClaims lists all claims related to the core platform.
func CoreClaims() []string {
	return []string{
		ClaimRolesRead,
		ClaimRolesWrite,
		ClaimRoleClaimsRead,
		ClaimRoleClaimsWrite,
		ClaimUserRolesRead,
		ClaimUserRolesWrite,
	}
}
