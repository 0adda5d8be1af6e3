package models

import (
	"math"
	"sort"
	"time"
)

// Role is a staff role such as doctor or nurse.
type Role string

const (
	RoleDoctor     Role = "doctor"
	RoleNurse      Role = "nurse"
	RoleSister     Role = "sister"
	RoleTechnician Role = "technician"
	RolePharmacist Role = "pharmacist"
	RoleSupport    Role = "support"
)

// MetricsSnapshot is one timestamped bundle of operational inputs for a hospital unit.
// It is produced by the data-collection layer and treated as immutable.
type MetricsSnapshot struct {
	UnitID             string       `json:"unit_id"`
	Timestamp          time.Time    `json:"timestamp"`
	PatientLoad        int          `json:"patient_load"`
	ICUOccupancy       float64      `json:"icu_occupancy_ratio"`
	EmergencyOccupancy float64      `json:"emergency_occupancy_ratio"`
	StaffAvailable     map[Role]int `json:"staff_available"`
	ExternalRisk       float64      `json:"external_risk_factor"`
}

// Validate checks the snapshot invariants: ratios in [0,1], non-negative counts.
func (s MetricsSnapshot) Validate() error {
	if s.UnitID == "" {
		return NewValidationError("unit_id", "is required")
	}
	if s.Timestamp.IsZero() {
		return NewValidationError("timestamp", "is required")
	}
	if s.PatientLoad < 0 {
		return NewValidationError("patient_load", "must be >= 0")
	}
	ratios := []struct {
		field string
		v     float64
	}{
		{"icu_occupancy_ratio", s.ICUOccupancy},
		{"emergency_occupancy_ratio", s.EmergencyOccupancy},
		{"external_risk_factor", s.ExternalRisk},
	}
	for _, r := range ratios {
		if math.IsNaN(r.v) || r.v < 0 || r.v > 1 {
			return NewValidationError(r.field, "must be within [0,1]")
		}
	}
	for _, role := range s.Roles() {
		if s.StaffAvailable[role] < 0 {
			return NewValidationError("staff_available."+string(role), "must be >= 0")
		}
	}
	return nil
}

// Roles returns the roles present in StaffAvailable in a stable order.
func (s MetricsSnapshot) Roles() []Role {
	return SortedRoles(s.StaffAvailable)
}

// TotalStaff sums available staff over all roles.
func (s MetricsSnapshot) TotalStaff() int {
	n := 0
	for _, c := range s.StaffAvailable {
		n += c
	}
	return n
}

// SortedRoles returns the keys of a role map sorted by name.
func SortedRoles[V any](m map[Role]V) []Role {
	roles := make([]Role, 0, len(m))
	for r := range m {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
