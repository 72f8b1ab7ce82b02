package stats

import (
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
)

// Alert helpers are the sole path to alert state. They take the dedicated
// alert lock so the pipeline never contends with the sample hot path.

// PutAlert inserts or refreshes an alert by fingerprint. An existing entry
// keeps its creation time and id; severity never decreases in place.
func (r *Repository) PutAlert(a model.Alert) {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()

	for i := range r.activeAlerts {
		if r.activeAlerts[i].Fingerprint == a.Fingerprint {
			existing := &r.activeAlerts[i]
			existing.LastSeenAt = monoMax(existing.LastSeenAt, a.LastSeenAt)
			existing.SuppressCount++
			existing.Message = a.Message
			if severityRank(a.Severity) > severityRank(existing.Severity) {
				existing.Severity = a.Severity
			}
			if a.Priority > existing.Priority {
				existing.Priority = a.Priority
			}
			return
		}
	}
	a.State = model.AlertActive
	r.activeAlerts = append(r.activeAlerts, a)
}

// ResolveAlert moves the alert with the given fingerprint to bounded history.
func (r *Repository) ResolveAlert(fingerprint string, now time.Time) bool {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()

	for i := range r.activeAlerts {
		if r.activeAlerts[i].Fingerprint == fingerprint {
			a := r.activeAlerts[i]
			a.LastSeenAt = monoMax(a.LastSeenAt, now)
			r.activeAlerts = append(r.activeAlerts[:i], r.activeAlerts[i+1:]...)
			a.State = model.AlertArchived
			r.alertHistory = append(r.alertHistory, a)
			if len(r.alertHistory) > maxAlertHistory {
				r.alertHistory = r.alertHistory[len(r.alertHistory)-maxAlertHistory:]
			}
			return true
		}
	}
	return false
}

// CleanOldAlerts drops history entries older than retention.
func (r *Repository) CleanOldAlerts(now time.Time, retention time.Duration) int {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()

	cutoff := now.Add(-retention)
	kept := r.alertHistory[:0]
	removed := 0
	for _, a := range r.alertHistory {
		if a.LastSeenAt.After(cutoff) {
			kept = append(kept, a)
		} else {
			removed++
		}
	}
	r.alertHistory = kept
	return removed
}

// ActiveAlerts returns a copy of the visible alert list.
func (r *Repository) ActiveAlerts() []model.Alert {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()
	out := make([]model.Alert, len(r.activeAlerts))
	copy(out, r.activeAlerts)
	return out
}

func severityRank(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 3
	case model.SeverityWarning:
		return 2
	default:
		return 1
	}
}
