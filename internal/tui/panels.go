package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/lipgloss"
)

func (m *Model) render() string {
	width := m.width
	if width > 120 {
		width = 120
	}
	panelWidth := width - 4

	sections := []string{
		m.renderStatus(panelWidth),
		m.renderLatency(panelWidth),
		m.renderNetwork(panelWidth),
		m.renderRoute(panelWidth),
		m.renderAlerts(panelWidth),
		statusBarStyle.Render("  q quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderStatus shows the connection headline, counters, diagnosis and public
// IP. Latency figures are rendered, and masked during an outage, by
// renderLatency.
func (m *Model) renderStatus(width int) string {
	s := m.snap

	var headline string
	if s.ConnectionLost {
		headline = critStyle.Render("DISCONNECTED")
	} else if s.Counters.Sent == 0 {
		headline = dimStyle.Render("waiting for first sample")
	} else {
		headline = okStyle.Render("CONNECTED")
	}

	loss := fmt.Sprintf("%.1f%%", s.LossPct())
	line2 := fmt.Sprintf("sent %d  ok %d  lost %d  loss %s  streak %d (max %d)",
		s.Counters.Sent, s.Counters.OK, s.Counters.Lost, loss,
		s.Counters.ConsecutiveLost, s.Counters.MaxConsecutiveLost)

	diag := string(s.Diagnosis.Kind)
	if diag == "" {
		diag = "none"
	}
	line3 := fmt.Sprintf("problem %s  prediction %s", diag, s.Diagnosis.Prediction)
	if s.Diagnosis.Pattern != "" {
		line3 += fmt.Sprintf("  pattern %s", s.Diagnosis.Pattern)
	}

	ipLine := fmt.Sprintf("public ip %s", orDash(s.PublicIP.IP))
	if s.PublicIP.Country != "" {
		ipLine += fmt.Sprintf(" (%s)", s.PublicIP.Country)
	}
	if s.Version.UpdateAvailable {
		ipLine += "  " + warnStyle.Render("update available: "+s.Version.Latest)
	}

	body := strings.Join([]string{
		titleStyle.Render("netwatch")+"  "+dimStyle.Render(s.Target)+"  "+headline,
		line2,
		line3,
		dimStyle.Render(ipLine),
	}, "\n")
	return panelStyle.Width(width).Render(body)
}

func (m *Model) renderLatency(width int) string {
	s := m.snap

	var body string
	if s.ConnectionLost || len(s.Latencies) == 0 {
		body = dimStyle.Render("no latency data")
	} else {
		chartWidth := width - 4
		if chartWidth > 60 {
			chartWidth = 60
		}
		sl := sparkline.New(chartWidth, 4)
		start := 0
		if len(s.Latencies) > chartWidth {
			start = len(s.Latencies) - chartWidth
		}
		for _, v := range s.Latencies[start:] {
			sl.Push(v)
		}
		sl.Draw()

		stats := fmt.Sprintf("last %.1f ms  avg %.1f ms  min %.1f  max %.1f  jitter %.1f ms",
			s.LastRTT, s.AvgRTT(), s.MinRTT, s.MaxRTT, s.Jitter)
		body = titleStyle.Render("latency") + "  " + dimStyle.Render(stats) + "\n" + sl.View()
	}
	return panelStyle.Width(width).Render(body)
}

func (m *Model) renderNetwork(width int) string {
	s := m.snap

	dns := fmt.Sprintf("dns score %.0f (%s)", s.DNSScore, s.DNSBucket)
	if len(s.DNSRecords) > 0 {
		types := make([]string, 0, len(s.DNSRecords))
		for rt := range s.DNSRecords {
			types = append(types, rt)
		}
		sort.Strings(types)
		parts := make([]string, 0, len(types))
		for _, rt := range types {
			r := s.DNSRecords[rt]
			if r.OK {
				parts = append(parts, okStyle.Render(rt))
			} else {
				parts = append(parts, critStyle.Render(rt))
			}
		}
		dns += "  " + strings.Join(parts, " ")
	}

	mtu := "mtu -"
	if s.MTU.LocalMTU > 0 {
		mtu = fmt.Sprintf("mtu local %d path %d", s.MTU.LocalMTU, s.MTU.PathMTU)
		if s.ConnectionLost {
			mtu += dimStyle.Render(" (stale)")
		} else if s.MTU.Issue {
			mtu += " " + warnStyle.Render("ISSUE")
		}
	}

	ttl := ""
	if s.TTL.LastTTL > 0 {
		ttl = fmt.Sprintf("  ttl %d (~%d hops)", s.TTL.LastTTL, s.TTL.EstimatedHops)
	}

	body := titleStyle.Render("network") + "\n" + dns + "\n" + mtu + ttl
	return panelStyle.Width(width).Render(body)
}

var sparkGlyphs = []rune("▁▂▃▄▅")

func (m *Model) renderRoute(width int) string {
	s := m.snap

	header := titleStyle.Render("route")
	switch {
	case s.HopsDiscovering:
		header += "  " + m.spinner.View() + dimStyle.Render(" discovering hops")
	case s.TracerouteRunning:
		header += "  " + dimStyle.Render("traceroute running")
	case s.RouteStats.HopCount > 0:
		header += fmt.Sprintf("  %d hops  health %s", s.RouteStats.HopCount, string(s.RouteStats.Health))
	}

	if s.ConnectionLost {
		return panelStyle.Width(width).Render(header + "\n" + dimStyle.Render("route data masked during outage"))
	}

	lines := []string{header}
	maxRows := 8
	for i, h := range s.Hops {
		if i >= maxRows {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("  ... %d more hops", len(s.Hops)-maxRows)))
			break
		}

		spark := make([]rune, 0, len(h.Sparkline))
		for _, bin := range h.Sparkline {
			if bin >= 0 && bin < len(sparkGlyphs) {
				spark = append(spark, sparkGlyphs[bin])
			}
		}

		name := h.Hostname
		if name == "" {
			name = h.IP
		}
		if len(name) > 28 {
			name = name[:28]
		}

		latency := "-"
		if h.LastOK {
			latency = fmt.Sprintf("%.1fms", h.LastRTT)
		}
		row := fmt.Sprintf(" %2d %-28s %8s loss %5.1f%% %s", h.Index, name, latency, h.LossPct(), string(spark))
		if h.Country != "" {
			row += dimStyle.Render(" " + h.CountryCode)
		}
		if h.LossPct() > 5 {
			row = warnStyle.Render(row)
		}
		lines = append(lines, row)
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderAlerts(width int) string {
	s := m.snap

	lines := []string{titleStyle.Render("alerts")}
	if len(s.ActiveAlerts) == 0 {
		lines = append(lines, dimStyle.Render("  none"))
	}
	for i, a := range s.ActiveAlerts {
		if i >= 5 {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("  ... %d more", len(s.ActiveAlerts)-5)))
			break
		}
		marker := fmt.Sprintf("[%s]", a.Severity)
		line := fmt.Sprintf("  %s %s", severityStyle(string(a.Severity)).Render(marker), a.Message)
		if a.SuppressCount > 0 {
			line += dimStyle.Render(fmt.Sprintf(" (x%d)", a.SuppressCount+1))
		}
		lines = append(lines, line)
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
