package engine

import (
	"fmt"
	"time"

	"StaffPulse/internal/domain/models"
	"StaffPulse/pkg/config"
)

// Classifier maps a risk score onto Normal/Proactive/Emergency with hysteresis and a
// minimum dwell before de-escalation. Escalation is never delayed.
type Classifier struct {
	proactive config.Threshold
	emergency config.Threshold
	minDwell  int
}

// Decision is a classification outcome with the explanation shown to operators.
type Decision struct {
	Class  models.Classification
	State  models.ClassifierState
	Reason string
}

func NewClassifier(cfg *config.EngineConfig) *Classifier {
	return &Classifier{
		proactive: cfg.Thresholds.Proactive,
		emergency: cfg.Thresholds.Emergency,
		minDwell:  cfg.MinDwell,
	}
}

// Classify returns the new classification and the successor state.
func (c *Classifier) Classify(score float64, st models.ClassifierState, at time.Time) (models.Classification, models.ClassifierState) {
	d := c.ClassifyWithReason(score, st, at)
	return d.Class, d.State
}

func (c *Classifier) ClassifyWithReason(score float64, st models.ClassifierState, at time.Time) Decision {
	if target := c.escalationTarget(score); target > st.Current {
		return Decision{
			Class:  target,
			State:  transition(target, at),
			Reason: fmt.Sprintf("score %.3f reached %s enter threshold %.2f", score, target, c.enter(target)),
		}
	}

	if st.Current == models.Normal {
		return stay(st, fmt.Sprintf("score %.3f below proactive enter threshold %.2f", score, c.proactive.Enter))
	}

	exit := c.exit(st.Current)
	if score > exit {
		return stay(st, fmt.Sprintf("score %.3f above %s exit threshold %.2f", score, st.Current, exit))
	}
	if st.CyclesInState < c.minDwell {
		return stay(st, fmt.Sprintf("score %.3f at or below %s exit threshold %.2f, held by dwell (%d/%d cycles)",
			score, st.Current, exit, st.CyclesInState, c.minDwell))
	}

	landing := models.Normal
	if st.Current == models.Emergency && score > c.proactive.Exit {
		landing = models.Proactive
	}
	return Decision{
		Class:  landing,
		State:  transition(landing, at),
		Reason: fmt.Sprintf("score %.3f at or below %s exit threshold %.2f after %d cycles", score, st.Current, exit, st.CyclesInState),
	}
}

// escalationTarget is the highest state whose enter threshold the score meets.
func (c *Classifier) escalationTarget(score float64) models.Classification {
	switch {
	case score >= c.emergency.Enter:
		return models.Emergency
	case score >= c.proactive.Enter:
		return models.Proactive
	default:
		return models.Normal
	}
}

func (c *Classifier) enter(class models.Classification) float64 {
	if class == models.Emergency {
		return c.emergency.Enter
	}
	return c.proactive.Enter
}

func (c *Classifier) exit(class models.Classification) float64 {
	if class == models.Emergency {
		return c.emergency.Exit
	}
	return c.proactive.Exit
}

func transition(to models.Classification, at time.Time) models.ClassifierState {
	return models.ClassifierState{Current: to, CyclesInState: 0, LastTransition: at}
}

func stay(st models.ClassifierState, reason string) Decision {
	st.CyclesInState++
	return Decision{Class: st.Current, State: st, Reason: reason}
}
