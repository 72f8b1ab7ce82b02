//go:build !windows

package procsup

import (
	"context"
	"testing"
	"time"
)

func TestSpawnOK(t *testing.T) {
	s := New(4, nil)
	res := s.Spawn(context.Background(), []string{"echo", "hello"}, 5*time.Second)
	if res.Kind != KindOK {
		t.Fatalf("kind=%s", res.Kind)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit=%d", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("stdout=%q", res.Stdout)
	}
}

func TestSpawnNonZeroExit(t *testing.T) {
	s := New(4, nil)
	res := s.Spawn(context.Background(), []string{"sh", "-c", "exit 3"}, 5*time.Second)
	if res.Kind != KindOK {
		t.Fatalf("kind=%s", res.Kind)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit=%d", res.ExitCode)
	}
}

func TestSpawnTimeoutKillsProcess(t *testing.T) {
	s := New(4, nil)
	start := time.Now()
	res := s.Spawn(context.Background(), []string{"sleep", "30"}, 200*time.Millisecond)
	if res.Kind != KindTimeout {
		t.Fatalf("kind=%s", res.Kind)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout kill took %v", elapsed)
	}
	if s.Active() != 0 {
		t.Fatalf("registry not drained: %d", s.Active())
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	s := New(4, nil)
	res := s.Spawn(context.Background(), []string{"definitely-not-a-binary-xyz"}, time.Second)
	if res.Kind != KindSpawnError {
		t.Fatalf("kind=%s", res.Kind)
	}
}

func TestShutdownTerminatesInFlight(t *testing.T) {
	s := New(8, nil)

	done := make(chan Result, 3)
	for i := 0; i < 3; i++ {
		go func() {
			done <- s.Spawn(context.Background(), []string{"sleep", "30"}, time.Minute)
		}()
	}

	// Let the children start before pulling the plug.
	deadline := time.Now().Add(2 * time.Second)
	for s.Active() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Active() != 3 {
		t.Fatalf("children did not start: active=%d", s.Active())
	}

	start := time.Now()
	s.Shutdown(2 * time.Second)
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Fatalf("shutdown took %v", elapsed)
	}

	for i := 0; i < 3; i++ {
		select {
		case res := <-done:
			if res.Kind == KindOK {
				t.Fatalf("killed sleep reported ok: %+v", res)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("spawn did not return after shutdown")
		}
	}
	if s.Active() != 0 {
		t.Fatalf("registry not empty after shutdown: %d", s.Active())
	}
}

func TestSpawnAfterShutdownRefused(t *testing.T) {
	s := New(2, nil)
	s.Shutdown(time.Second)
	res := s.Spawn(context.Background(), []string{"echo", "x"}, time.Second)
	if res.Kind != KindKilled {
		t.Fatalf("kind=%s", res.Kind)
	}
}
