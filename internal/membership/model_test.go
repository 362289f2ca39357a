package membership

import "testing"

func sampleMemberships() []Membership {
	return []Membership{
		{ClinicID: "clinic-1", Role: RoleDoctor, HasRelationship: true},
		{ClinicID: "clinic-2", Role: RoleNurse, HasRelationship: true},
		{ClinicID: "clinic-3", Role: RoleStaff, HasRelationship: false},
	}
}

func TestActiveOnlyFiltersInactive(t *testing.T) {
	active := ActiveOnly(sampleMemberships())
	if len(active) != 2 {
		t.Fatalf("expected 2 active memberships, got %d", len(active))
	}
	for _, m := range active {
		if !m.HasRelationship {
			t.Fatalf("inactive membership leaked through: %+v", m)
		}
	}
}

func TestFindActive(t *testing.T) {
	memberships := sampleMemberships()

	if _, ok := FindActive(memberships, "clinic-3"); ok {
		t.Fatal("revoked membership must not be selectable")
	}
	m, ok := FindActive(memberships, "clinic-2")
	if !ok || m.Role != RoleNurse {
		t.Fatalf("expected active clinic-2 membership, got %+v ok=%v", m, ok)
	}
	if _, ok := FindActive(memberships, "clinic-404"); ok {
		t.Fatal("unknown clinic must not resolve")
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist, RoleAccountant, RoleStaff} {
		if !ValidRole(role) {
			t.Errorf("expected %q to be valid", role)
		}
	}
	if ValidRole("owner") || ValidRole("") {
		t.Error("unexpected role accepted")
	}
}

func TestRoleHasPermission(t *testing.T) {
	if !RoleHasPermission(RoleDoctor, PermWritePrescriptions) {
		t.Error("doctors must be able to prescribe")
	}
	if RoleHasPermission(RoleAdmin, PermWritePrescriptions) {
		t.Error("clinic admins must not prescribe")
	}
	if !RoleHasPermission(RoleAccountant, PermManageBilling) {
		t.Error("accountants must manage billing")
	}
	if RoleHasPermission(RoleStaff, PermManagePatients) {
		t.Error("staff must not manage patients")
	}
	if RoleHasPermission("owner", PermViewReports) {
		t.Error("unknown roles carry no permissions")
	}
}
