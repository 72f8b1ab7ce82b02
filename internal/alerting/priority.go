package alerting

import (
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
)

// Weights for the priority score. Business impact dominates, time-based
// escalation nudges aged alerts upward.
const (
	weightBusiness    = 0.4
	weightUser        = 0.3
	weightCriticality = 0.2
	weightTime        = 0.1
)

type impact struct {
	business float64
	user     float64
}

var alertImpact = map[model.AlertType]impact{
	model.AlertConnectionLost: {1.0, 1.0},
	model.AlertPacketLoss:     {0.7, 0.8},
	model.AlertHighLatency:    {0.6, 0.7},
	model.AlertHighAvgLatency: {0.6, 0.7},
	model.AlertHighJitter:     {0.5, 0.6},
	model.AlertMTUIssue:       {0.5, 0.6},
	model.AlertRouteChange:    {0.4, 0.3},
	model.AlertDNSFailure:     {0.8, 0.9},
	model.AlertIPChange:       {0.3, 0.2},
	model.AlertHopIssue:       {0.5, 0.4},
	model.AlertAnomaly:        {0.6, 0.5},
}

var serviceCriticality = map[string]float64{
	"ping":    1.0,
	"network": 1.0,
	"dns":     0.8,
	"route":   0.7,
	"hop":     0.6,
	"mtu":     0.6,
	"ip":      0.5,
}

// Prioritizer computes weighted priorities and escalates aged alerts.
type Prioritizer struct {
	escalationAfter time.Duration
}

// NewPrioritizer builds the stage; escalationAfter bounds time-based scoring.
func NewPrioritizer(escalationAfter time.Duration) *Prioritizer {
	if escalationAfter <= 0 {
		escalationAfter = 30 * time.Minute
	}
	return &Prioritizer{escalationAfter: escalationAfter}
}

// Calculate scores an alert into a priority bucket.
func (p *Prioritizer) Calculate(a model.Alert, now time.Time) model.Priority {
	imp, ok := alertImpact[a.Type]
	if !ok {
		imp = impact{0.5, 0.5}
	}
	service, ok := serviceCriticality[a.Context.Service]
	if !ok {
		service = 0.5
	}

	age := now.Sub(a.CreatedAt)
	timeScore := float64(age) / float64(p.escalationAfter)
	if timeScore > 1 {
		timeScore = 1
	}
	if timeScore < 0 {
		timeScore = 0
	}

	score := imp.business*weightBusiness + imp.user*weightUser + service*weightCriticality + timeScore*weightTime
	return scoreToPriority(score)
}

// Escalate lifts aged alerts one level, capped at critical.
func (p *Prioritizer) Escalate(a *model.Alert, now time.Time) bool {
	if now.Sub(a.CreatedAt) < p.escalationAfter || a.Priority >= model.PriorityCritical {
		return false
	}
	a.Priority++
	return true
}

func scoreToPriority(score float64) model.Priority {
	switch {
	case score >= 0.8:
		return model.PriorityCritical
	case score >= 0.6:
		return model.PriorityHigh
	case score >= 0.4:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// severityFor maps priority to the user-facing severity.
func severityFor(p model.Priority) model.Severity {
	switch {
	case p >= model.PriorityCritical:
		return model.SeverityCritical
	case p >= model.PriorityMedium:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}
