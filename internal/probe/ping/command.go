// Package ping builds, runs, and parses single-shot system ping invocations.
package ping

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// family caches IPv6 detection per host so the hot path never blocks on DNS.
type family struct {
	mu      sync.Mutex
	entries map[string]familyEntry
}

type familyEntry struct {
	ipv6    bool
	checked time.Time
}

const familyCacheTTL = time.Minute

func (f *family) isIPv6(ctx context.Context, host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.To4() == nil
	}

	f.mu.Lock()
	if f.entries == nil {
		f.entries = make(map[string]familyEntry)
	}
	if e, ok := f.entries[host]; ok && time.Since(e.checked) < familyCacheTTL {
		f.mu.Unlock()
		return e.ipv6
	}
	f.mu.Unlock()

	ipv6 := false
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err == nil {
		ipv6 = true
		for _, a := range addrs {
			if a.IP.To4() != nil {
				ipv6 = false
				break
			}
		}
	}

	f.mu.Lock()
	f.entries[host] = familyEntry{ipv6: ipv6, checked: time.Now()}
	f.mu.Unlock()
	return ipv6
}

// BuildCommand returns the OS-specific single-shot ping argv. The reply wait
// is capped at the probe interval so one tick never overlaps the next. Hosts
// beginning with a dash are rejected to block argument injection.
func BuildCommand(host string, wait time.Duration, ipv6 bool) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(host), "-") {
		return nil, fmt.Errorf("invalid ping host %q", host)
	}

	if runtime.GOOS == "windows" {
		ms := int(wait / time.Millisecond)
		if ms < 100 {
			ms = 100
		}
		return []string{"ping", "-n", "1", "-w", strconv.Itoa(ms), host}, nil
	}

	sec := int(wait / time.Second)
	if sec < 1 {
		sec = 1
	}
	argv := []string{"ping", "-n", "-c", "1", "-W", strconv.Itoa(sec)}
	if ipv6 {
		argv = append(argv, "-6")
	}
	return append(argv, host), nil
}

// BuildDFCommand returns a don't-fragment ping with the given payload size,
// used by path-MTU discovery.
func BuildDFCommand(host string, size int, wait time.Duration, ipv6 bool) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(host), "-") {
		return nil, fmt.Errorf("invalid ping host %q", host)
	}

	if runtime.GOOS == "windows" {
		ms := int(wait / time.Millisecond)
		if ms < 100 {
			ms = 100
		}
		return []string{"ping", "-n", "1", "-f", "-l", strconv.Itoa(size), "-w", strconv.Itoa(ms), host}, nil
	}

	sec := int(wait / time.Second)
	if sec < 1 {
		sec = 1
	}
	argv := []string{"ping", "-n", "-c", "1", "-M", "do", "-s", strconv.Itoa(size), "-W", strconv.Itoa(sec)}
	if ipv6 {
		argv = append(argv, "-6")
	}
	return append(argv, host), nil
}
