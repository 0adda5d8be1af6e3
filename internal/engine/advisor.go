package engine

import (
	"fmt"
	"math"
	"strings"

	"StaffPulse/internal/domain/models"
	"StaffPulse/pkg/config"
)

const RationaleAdequate = "adequate staffing"

// Advisor turns a classification into per-role staffing additions. It is advisory only.
type Advisor struct {
	baseline        map[models.Role]int
	proactiveTarget float64
	emergencyTarget float64
	surge           map[models.Role]int
	approval        map[models.Role]bool
}

func NewAdvisor(cfg *config.EngineConfig) *Advisor {
	a := &Advisor{
		baseline:        make(map[models.Role]int, len(cfg.BaselineStaff)),
		proactiveTarget: cfg.Staffing.ProactiveTargetRatio,
		emergencyTarget: cfg.Staffing.EmergencyTargetRatio,
		surge:           make(map[models.Role]int, len(cfg.Staffing.Surge)),
		approval:        make(map[models.Role]bool, len(cfg.Staffing.ApprovalRequired)),
	}
	for role, n := range cfg.BaselineStaff {
		a.baseline[models.Role(role)] = n
	}
	for role, n := range cfg.Staffing.Surge {
		a.surge[models.Role(role)] = n
	}
	for _, role := range cfg.Staffing.ApprovalRequired {
		a.approval[models.Role(strings.ToLower(role))] = true
	}
	return a
}

func (a *Advisor) Recommend(class models.Classification, snap models.MetricsSnapshot) models.StaffingRecommendation {
	deltas := make(map[models.Role]int, len(a.baseline))
	for role := range a.baseline {
		deltas[role] = 0
	}

	if class == models.Normal {
		return models.StaffingRecommendation{Deltas: deltas, Rationale: RationaleAdequate}
	}

	target := a.proactiveTarget
	if class == models.Emergency {
		target = a.emergencyTarget
	}
	for role, base := range a.baseline {
		if base <= 0 {
			continue
		}
		// (target - available/base) * base, with a small epsilon so exact targets do not round up
		need := math.Ceil(target*float64(base) - float64(snap.StaffAvailable[role]) - 1e-9)
		if need > 0 {
			deltas[role] = int(need)
		}
	}
	if class == models.Emergency {
		for role, n := range a.surge {
			deltas[role] += n
		}
	}

	rec := models.StaffingRecommendation{Deltas: deltas}
	var parts []string
	for _, role := range models.SortedRoles(deltas) {
		d := deltas[role]
		if d <= 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s +%d", role, d))
		if a.approval[role] {
			rec.ApprovalRequired = append(rec.ApprovalRequired, role)
		}
	}

	if len(parts) == 0 {
		rec.Rationale = RationaleAdequate
		return rec
	}
	rec.Rationale = fmt.Sprintf("%s: staff to %.0f%% of baseline (%s)", class, target*100, strings.Join(parts, ", "))
	if class == models.Emergency && len(a.surge) > 0 {
		rec.Rationale += ", including on-call surge"
	}
	return rec
}
