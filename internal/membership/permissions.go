package membership

// Capabilities granted to clinic roles. Permission checks are layered on
// role checks; global admin tiers bypass them entirely (see guard).
const (
	PermManagePatients     = "patients.manage"
	PermManageAppointments = "appointments.manage"
	PermWritePrescriptions = "prescriptions.write"
	PermManageInventory    = "inventory.manage"
	PermManageBilling      = "billing.manage"
	PermManageStaff        = "staff.manage"
	PermViewReports        = "reports.view"
)

var rolePermissions = map[string]map[string]bool{
	RoleAdmin: {
		PermManagePatients:     true,
		PermManageAppointments: true,
		PermWritePrescriptions: false,
		PermManageInventory:    true,
		PermManageBilling:      true,
		PermManageStaff:        true,
		PermViewReports:        true,
	},
	RoleDoctor: {
		PermManagePatients:     true,
		PermManageAppointments: true,
		PermWritePrescriptions: true,
		PermViewReports:        true,
	},
	RoleNurse: {
		PermManagePatients:     true,
		PermManageAppointments: true,
	},
	RoleReceptionist: {
		PermManageAppointments: true,
	},
	RoleAccountant: {
		PermManageBilling: true,
		PermViewReports:   true,
	},
	RoleStaff: {},
}

// RoleHasPermission reports whether a clinic role carries a capability.
func RoleHasPermission(role, permission string) bool {
	perms, ok := rolePermissions[role]
	return ok && perms[permission]
}
