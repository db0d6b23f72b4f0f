package models

// Roles carried in access tokens. Buyers and sellers are both "user";
// which side they are on is decided per transaction.
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Permission constants
const (
	// Transaction permissions
	PermissionTransactionRead  = "transaction:read"
	PermissionTransactionWrite = "transaction:write"

	// Dispute permissions
	PermissionDisputeWrite = "dispute:write"

	// Escrow permissions
	PermissionEscrowRelease = "escrow:release"
	PermissionEscrowRefund  = "escrow:refund"

	// Admin permissions
	PermissionReadAdmin  = "admin:read"
	PermissionWriteAdmin = "admin:write"
	PermissionAuditRead  = "audit:read"
)

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionTransactionRead,
			PermissionTransactionWrite,
			PermissionEscrowRelease,
			PermissionEscrowRefund,
			PermissionReadAdmin,
			PermissionWriteAdmin,
			PermissionAuditRead,
		}
	case RoleUser:
		return []string{
			PermissionTransactionRead,
			PermissionTransactionWrite,
			PermissionDisputeWrite,
		}
	default:
		return []string{}
	}
}
