package models

import "time"

// EvaluateRequest is the HTTP body of an on-demand evaluation.
type EvaluateRequest struct {
	UnitID             string         `json:"unit_id" validate:"required"`
	Timestamp          *time.Time     `json:"timestamp"`
	PatientLoad        int            `json:"patient_load" validate:"gte=0"`
	ICUOccupancy       float64        `json:"icu_occupancy_ratio" validate:"gte=0,lte=1"`
	EmergencyOccupancy float64        `json:"emergency_occupancy_ratio" validate:"gte=0,lte=1"`
	StaffAvailable     map[string]int `json:"staff_available" validate:"dive,gte=0"`
	ExternalRisk       float64        `json:"external_risk_factor" validate:"gte=0,lte=1"`
}

// Snapshot converts the request; a missing timestamp means "now".
func (r EvaluateRequest) Snapshot(now time.Time) MetricsSnapshot {
	ts := now
	if r.Timestamp != nil && !r.Timestamp.IsZero() {
		ts = *r.Timestamp
	}
	staff := make(map[Role]int, len(r.StaffAvailable))
	for role, n := range r.StaffAvailable {
		staff[Role(role)] = n
	}
	return MetricsSnapshot{
		UnitID:             r.UnitID,
		Timestamp:          ts,
		PatientLoad:        r.PatientLoad,
		ICUOccupancy:       r.ICUOccupancy,
		EmergencyOccupancy: r.EmergencyOccupancy,
		StaffAvailable:     staff,
		ExternalRisk:       r.ExternalRisk,
	}
}

type UnitStateRequest struct {
	Unit string `param:"unit" json:"unit" validate:"required"`
}

type DecisionHistoryRequest struct {
	Unit  string `param:"unit" json:"unit" validate:"required"`
	From  string `query:"from" json:"from"`
	To    string `query:"to" json:"to"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type DecisionAggregateRequest struct {
	Unit        string `param:"unit" json:"unit" validate:"required"`
	Granularity string `query:"granularity" json:"granularity" default:"day" validate:"oneof=day week month year"`
	From        string `query:"from" json:"from"`
	To          string `query:"to" json:"to"`
}

// EvaluateResponse is returned by the evaluation endpoint.
type EvaluateResponse struct {
	RecordID   string         `json:"record_id,omitempty"`
	Record     DecisionRecord `json:"record"`
	Unaudited  bool           `json:"unaudited"`
	AuditError string         `json:"audit_error,omitempty"`

	// AuditQueued means the record will be appended under RecordID by the retry queue.
	AuditQueued bool `json:"audit_queued,omitempty"`
}
