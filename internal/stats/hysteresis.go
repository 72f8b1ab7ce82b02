package stats

import (
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
)

// UpdateMTU stores the raw MTU readings from the last probe.
func (r *Repository) UpdateMTU(localMTU, pathMTU int) {
	r.mu.Lock()
	r.mtu.LocalMTU = localMTU
	r.mtu.PathMTU = pathMTU
	r.mu.Unlock()
}

// UpdateMTUHysteresis feeds one probe verdict into the MTU state machine.
// The issue flag flips only after the configured number of consecutive
// observations, except on the very first probe which applies immediately so
// the dashboard shows a value right away.
func (r *Repository) UpdateMTUHysteresis(issueNow bool, issueConsec, clearConsec int) (changed bool, issue bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if issueConsec <= 0 {
		issueConsec = model.DefaultMTUIssueConsec
	}
	if clearConsec <= 0 {
		clearConsec = model.DefaultMTUClearConsec
	}

	if !r.mtu.Probed {
		r.mtu.Probed = true
		if r.mtu.Issue != issueNow {
			r.mtu.Issue = issueNow
			r.mtu.LastChange = r.now().UTC()
			changed = true
		}
		return changed, r.mtu.Issue
	}

	if issueNow {
		r.mtu.ConsecutiveIssue++
		r.mtu.ConsecutiveClear = 0
		if !r.mtu.Issue && r.mtu.ConsecutiveIssue >= issueConsec {
			r.mtu.Issue = true
			r.mtu.LastChange = r.now().UTC()
			changed = true
		}
	} else {
		r.mtu.ConsecutiveClear++
		r.mtu.ConsecutiveIssue = 0
		if r.mtu.Issue && r.mtu.ConsecutiveClear >= clearConsec {
			r.mtu.Issue = false
			r.mtu.LastChange = r.now().UTC()
			changed = true
		}
	}
	return changed, r.mtu.Issue
}

// UpdateRouteHysteresis compares a freshly parsed route fingerprint against
// the stored one. A change is committed only after consec consecutive
// detections disagreeing with the stored route; a matching detection resets
// the run.
func (r *Repository) UpdateRouteHysteresis(fingerprint string, consec int) (changed bool, run int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if consec <= 0 {
		consec = model.DefaultRouteChangeConsec
	}

	if r.route.Fingerprint == "" || fingerprint == r.route.Fingerprint {
		r.routeConsecSame++
		r.routeConsecChanges = 0
		return false, 0
	}

	r.routeConsecChanges++
	r.routeConsecSame = 0
	if r.routeConsecChanges >= consec {
		r.routeChanged = true
		r.routeChangeCount++
		r.routeLastChangeAt = r.now().UTC()
		r.routeConsecChanges = 0
		return true, consec
	}
	return false, r.routeConsecChanges
}

// SetRoute replaces the stored route after a committed change or first
// discovery.
func (r *Repository) SetRoute(route model.Route, diffCount, problematicHop int) {
	r.mu.Lock()
	r.route = route
	r.routeLastDiffCount = diffCount
	r.problematicHop = problematicHop
	r.mu.Unlock()
}

// SetProblematicHop updates only the problematic-hop marker.
func (r *Repository) SetProblematicHop(index int) {
	r.mu.Lock()
	r.problematicHop = index
	r.mu.Unlock()
}

// Route returns a copy of the stored route.
func (r *Repository) Route() model.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.route
	out.Hops = append([]model.Hop(nil), r.route.Hops...)
	return out
}

// RouteFingerprint returns the fingerprint of the stored route.
func (r *Repository) RouteFingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.route.Fingerprint
}

// ClearRouteChanged resets the change flag once the hop prober rebuilt its
// table.
func (r *Repository) ClearRouteChanged() {
	r.mu.Lock()
	r.routeChanged = false
	r.mu.Unlock()
}

// RouteChanged reports whether a committed route change is pending pickup.
func (r *Repository) RouteChanged() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routeChanged
}

// SetTracerouteRunning flips the in-flight flag and stamps the start time.
func (r *Repository) SetTracerouteRunning(running bool) {
	r.mu.Lock()
	r.tracerouteRunning = running
	if running {
		r.lastTracerouteAt = r.now().UTC()
	}
	r.mu.Unlock()
}

// TracerouteRunning reports the in-flight flag.
func (r *Repository) TracerouteRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracerouteRunning
}

// LastTracerouteAt returns when the last traceroute started, zero if never.
func (r *Repository) LastTracerouteAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastTracerouteAt
}

// SetHopsDiscovering flips the discovery flag without touching the table.
func (r *Repository) SetHopsDiscovering(discovering bool) {
	r.mu.Lock()
	r.hopsDiscovering = discovering
	r.mu.Unlock()
}

// UpdateHops replaces the live hop table snapshot. The discovery flag is
// owned by SetHopsDiscovering.
func (r *Repository) UpdateHops(hops []model.HopStatus, rs model.RouteStats) {
	r.mu.Lock()
	r.hops = hops
	r.routeStats = rs
	r.mu.Unlock()
}
