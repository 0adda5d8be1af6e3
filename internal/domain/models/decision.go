package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Classification is the operating regime of a hospital unit, ordered by severity.
type Classification int

const (
	Normal Classification = iota
	Proactive
	Emergency
)

func (c Classification) String() string {
	switch c {
	case Normal:
		return "normal"
	case Proactive:
		return "proactive"
	case Emergency:
		return "emergency"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// ParseClassification accepts the lower-case names produced by String.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return Normal, nil
	case "proactive":
		return Proactive, nil
	case "emergency":
		return Emergency, nil
	default:
		return Normal, fmt.Errorf("unknown classification %q", s)
	}
}

func (c Classification) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Classification) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClassification(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Factor is one explainable term of the risk score.
type Factor struct {
	Name         string  `json:"name"`
	Weight       float64 `json:"weight"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// RiskScore is the normalized risk of one cycle and the factors that produced it.
type RiskScore struct {
	Value            float64  `json:"value"`
	Factors          []Factor `json:"contributing_factors"`
	ModelUsed        bool     `json:"model_used"`
	ModelProbability float64  `json:"model_probability,omitempty"`
	ModelError       string   `json:"model_error,omitempty"`
}

// ClassifierState is the hysteresis memory of one hospital unit.
type ClassifierState struct {
	Current        Classification `json:"current"`
	CyclesInState  int            `json:"cycles_in_state"`
	LastTransition time.Time      `json:"last_transition"`

	// LastEvaluated is the timestamp of the newest snapshot applied to the state.
	LastEvaluated time.Time `json:"last_evaluated"`
}

// InitialState is the state every unit starts from.
func InitialState() ClassifierState {
	return ClassifierState{Current: Normal}
}

// StaffingRecommendation is advisory output; deltas are additions per role.
type StaffingRecommendation struct {
	Deltas           map[Role]int `json:"deltas"`
	Rationale        string       `json:"rationale"`
	ApprovalRequired []Role       `json:"approval_required,omitempty"`
}

// Total returns the sum of all deltas.
func (r StaffingRecommendation) Total() int {
	n := 0
	for _, d := range r.Deltas {
		n += d
	}
	return n
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// AlertEvent records the alerting outcome of a cycle.
type AlertEvent struct {
	Severity       Severity  `json:"severity"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
	Recipients     []string  `json:"recipients,omitempty"`
	Suppressed     bool      `json:"suppressed"`
	DeliveryFailed bool      `json:"delivery_failed"`
	Error          string    `json:"error,omitempty"`
}

// Fired reports whether a live notification was attempted.
func (a *AlertEvent) Fired() bool {
	return a != nil && !a.Suppressed
}

// DecisionRecord is the audit unit: one per evaluation cycle, never mutated.
type DecisionRecord struct {
	UnitID                 string                 `json:"unit_id"`
	Snapshot               MetricsSnapshot        `json:"snapshot"`
	RiskScore              RiskScore              `json:"risk_score"`
	PreviousClassification Classification         `json:"previous_classification"`
	Classification         Classification         `json:"classification"`
	Reason                 string                 `json:"reason"`
	State                  ClassifierState        `json:"state"`
	Recommendation         StaffingRecommendation `json:"recommendation"`
	Alert                  *AlertEvent            `json:"alert,omitempty"`
	EngineVersion          string                 `json:"engine_version"`
	EvaluatedAt            time.Time              `json:"evaluated_at"`
}

// Transitioned reports whether the cycle changed the classification.
func (d DecisionRecord) Transitioned() bool {
	return d.PreviousClassification != d.Classification
}

// StoredDecision is a ledger row: the record plus the id assigned on append.
type StoredDecision struct {
	ID     string         `json:"id"`
	Record DecisionRecord `json:"record"`
}

// Granularity selects the bucket size of historical aggregation.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// IsValid returns true for supported granularities.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
		return true
	}
	return false
}

// BucketStart truncates t (in UTC) to the start of its bucket. Weeks start on Monday.
func (g Granularity) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GranularityWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case GranularityYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// DecisionAggregate is a read-only projection of the ledger over one time bucket.
type DecisionAggregate struct {
	Bucket          time.Time `json:"bucket"`
	Cycles          int       `json:"cycles"`
	AvgRisk         float64   `json:"avg_risk"`
	MaxRisk         float64   `json:"max_risk"`
	NormalCycles    int       `json:"normal_cycles"`
	ProactiveCycles int       `json:"proactive_cycles"`
	EmergencyCycles int       `json:"emergency_cycles"`
	AlertsFired     int       `json:"alerts_fired"`
}
