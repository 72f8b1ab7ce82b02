// Package dnsmon monitors resolver health: per-record-type checks against a
// test domain and cached/uncached/dotcom benchmarks per configured server,
// folded into a composite score.
package dnsmon

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Client issues single DNS queries against a specific server.
type Client struct {
	timeout time.Duration
	dns     *dns.Client
}

// NewClient builds a query client with the given per-query timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		timeout: timeout,
		dns:     &dns.Client{Timeout: timeout},
	}
}

// SystemServer returns the first nameserver from the host resolver config,
// falling back to a public resolver when none can be read.
func SystemServer() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err == nil && len(cfg.Servers) > 0 {
		return cfg.Servers[0]
	}
	return "1.1.1.1"
}

var recordTypes = map[string]uint16{
	"A":     dns.TypeA,
	"AAAA":  dns.TypeAAAA,
	"CNAME": dns.TypeCNAME,
	"MX":    dns.TypeMX,
	"TXT":   dns.TypeTXT,
	"NS":    dns.TypeNS,
}

// Query resolves domain/recordType against server and returns the latency
// and answer count. NXDOMAIN and empty answers are errors; the caller
// decides whether a negative answer still counts (the uncached benchmark
// does).
func (c *Client) Query(ctx context.Context, server, domain, recordType string) (latencyMs float64, count int, err error) {
	qtype, ok := recordTypes[strings.ToUpper(recordType)]
	if !ok {
		return 0, 0, fmt.Errorf("unsupported record type %q", recordType)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = true

	start := time.Now()
	resp, _, err := c.dns.ExchangeContext(ctx, msg, net.JoinHostPort(server, "53"))
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return 0, 0, err
	}

	if resp.Rcode != dns.RcodeSuccess {
		return elapsed, 0, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) == 0 {
		return elapsed, 0, fmt.Errorf("no answer")
	}
	return elapsed, len(resp.Answer), nil
}
