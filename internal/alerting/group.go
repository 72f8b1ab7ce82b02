package alerting

import (
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"

	"github.com/google/uuid"
)

// rootCauseMap declares which alert types are effects of another: members
// collapse into the root cause's group instead of standing alone.
var rootCauseMap = map[model.AlertType][]model.AlertType{
	model.AlertConnectionLost: {model.AlertPacketLoss, model.AlertHighLatency, model.AlertHighJitter},
	model.AlertMTUIssue:       {model.AlertPacketLoss, model.AlertHighLatency},
	model.AlertRouteChange:    {model.AlertHighLatency, model.AlertPacketLoss},
	model.AlertDNSFailure:     {model.AlertConnectionLost},
}

// Grouper clusters related alerts within a temporal window.
type Grouper struct {
	window  time.Duration
	maxSize int

	groups map[string]*model.AlertGroup
}

// NewGrouper builds the grouping stage.
func NewGrouper(window time.Duration, maxSize int) *Grouper {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 20
	}
	return &Grouper{window: window, maxSize: maxSize, groups: make(map[string]*model.AlertGroup)}
}

// Add places the alert into a matching group or creates a new one.
func (g *Grouper) Add(a *model.Alert, now time.Time) *model.AlertGroup {
	g.expire(now)

	if grp := g.find(a, now); grp != nil && len(grp.Alerts) < g.maxSize {
		grp.Add(a, now)
		return grp
	}

	grp := &model.AlertGroup{
		ID:        uuid.NewString()[:8],
		Leader:    a.Fingerprint,
		Context:   a.Context,
		RootCause: a.Type,
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}
	grp.Add(a, now)
	g.groups[grp.ID] = grp
	return grp
}

// Suppressed reports whether the alert type is a known effect of an active
// root cause for the same target, in which case it should not surface as an
// independent entry.
func (g *Grouper) Suppressed(a model.Alert, now time.Time) bool {
	for _, grp := range g.groups {
		if !grp.Active || now.Sub(grp.UpdatedAt) > g.window {
			continue
		}
		for _, effect := range rootCauseMap[grp.RootCause] {
			if a.Type == effect && grp.Context.Target == a.Context.Target {
				return true
			}
		}
	}
	return false
}

// Active returns all live groups.
func (g *Grouper) Active() []*model.AlertGroup {
	out := make([]*model.AlertGroup, 0, len(g.groups))
	for _, grp := range g.groups {
		if grp.Active {
			out = append(out, grp)
		}
	}
	return out
}

func (g *Grouper) find(a *model.Alert, now time.Time) *model.AlertGroup {
	// Exact context match first.
	for _, grp := range g.groups {
		if grp.Active && grp.Context.Matches(a.Context, true) {
			return grp
		}
	}

	// Root-cause correlation: the new alert is an effect of a group's cause
	// (or the cause of an existing effect) for the same target.
	for _, grp := range g.groups {
		if !grp.Active || grp.Context.Target != a.Context.Target {
			continue
		}
		if related(grp.RootCause, a.Type) || related(a.Type, grp.RootCause) {
			return grp
		}
	}

	// Temporal correlation: same service and component within the window.
	for _, grp := range g.groups {
		if !grp.Active || now.Sub(grp.CreatedAt) > g.window {
			continue
		}
		if grp.Context.Service == a.Context.Service && grp.Context.Component == a.Context.Component {
			return grp
		}
	}
	return nil
}

func related(cause, effect model.AlertType) bool {
	for _, e := range rootCauseMap[cause] {
		if e == effect {
			return true
		}
	}
	return false
}

func (g *Grouper) expire(now time.Time) {
	for id, grp := range g.groups {
		if now.Sub(grp.UpdatedAt) > g.window {
			grp.Active = false
			delete(g.groups, id)
		}
	}
}
