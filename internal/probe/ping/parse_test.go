package ping

import (
	"testing"
	"time"
)

func TestParseRTT(t *testing.T) {
	cases := []struct {
		name   string
		stdout string
		exit   int
		rtt    float64
		ok     bool
	}{
		{"linux reply", "64 bytes from 1.1.1.1: icmp_seq=1 ttl=57 time=12.4 ms", 0, 12.4, true},
		{"windows reply", "Reply from 1.1.1.1: bytes=32 time=8ms TTL=57", 0, 8, true},
		{"comma decimal", "64 bytes: time=3,7 ms", 0, 3.7, true},
		{"sub millisecond", "Reply from 10.0.0.1: bytes=32 time<1ms TTL=64", 0, 0.5, true},
		{"nonzero exit wins over output", "time=0 ms", 1, 0, false},
		{"timed out phrase", "Request timed out.", 0, 0, false},
		{"unreachable", "Destination host unreachable", 0, 0, false},
		{"full loss", "1 packets transmitted, 0 received, 100% packet loss", 0, 0, false},
		{"empty", "", 0, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rtt, ok := ParseRTT(tc.stdout, tc.exit)
			if ok != tc.ok {
				t.Fatalf("ok=%v, want %v", ok, tc.ok)
			}
			if ok && rtt != tc.rtt {
				t.Fatalf("rtt=%f, want %f", rtt, tc.rtt)
			}
		})
	}
}

func TestParseTTL(t *testing.T) {
	ttl, hops, ok := ParseTTL("64 bytes from 1.1.1.1: icmp_seq=1 ttl=57 time=12.4 ms")
	if !ok || ttl != 57 || hops != 7 {
		t.Fatalf("ttl=%d hops=%d ok=%v", ttl, hops, ok)
	}

	ttl, hops, ok = ParseTTL("Reply from 8.8.8.8: bytes=32 time=8ms TTL=115")
	if !ok || ttl != 115 || hops != 13 {
		t.Fatalf("ttl=%d hops=%d ok=%v", ttl, hops, ok)
	}

	if _, _, ok := ParseTTL("no ttl here"); ok {
		t.Fatal("parsed ttl from garbage")
	}
}

func TestBuildCommandRejectsInjection(t *testing.T) {
	if _, err := BuildCommand("-c 100000 evil", time.Second, false); err == nil {
		t.Fatal("host beginning with dash accepted")
	}
}

func TestBuildCommandShape(t *testing.T) {
	argv, err := BuildCommand("1.1.1.1", time.Second, false)
	if err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}
	if argv[0] != "ping" {
		t.Fatalf("argv=%v", argv)
	}
	if argv[len(argv)-1] != "1.1.1.1" {
		t.Fatalf("host not last: %v", argv)
	}
}
