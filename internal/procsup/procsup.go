// Package procsup owns every external subprocess (ping, traceroute) spawned
// by the probes. It enforces hard wall-clock timeouts, tracks live processes
// in a registry, and guarantees termination on engine shutdown.
package procsup

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ResultKind classifies how a spawn ended.
type ResultKind string

const (
	KindOK         ResultKind = "ok"
	KindTimeout    ResultKind = "timeout"
	KindKilled     ResultKind = "killed"
	KindSpawnError ResultKind = "spawn-error"
)

// Result is the outcome of one subprocess invocation.
type Result struct {
	Stdout   string
	ExitCode int
	Kind     ResultKind
}

// Supervisor spawns and tracks subprocesses. A semaphore bounds concurrency
// so a hop-probe burst cannot starve the main ping.
type Supervisor struct {
	mu     sync.Mutex
	procs  map[*exec.Cmd]struct{}
	sem    chan struct{}
	log    *zap.Logger
	closed bool
}

// New creates a supervisor with the given concurrency bound.
func New(maxConcurrent int, log *zap.Logger) *Supervisor {
	if maxConcurrent <= 0 {
		maxConcurrent = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		procs: make(map[*exec.Cmd]struct{}),
		sem:   make(chan struct{}, maxConcurrent),
		log:   log,
	}
}

// Spawn runs argv with a hard wall-clock timeout. On timeout or context
// cancellation the whole process group is terminated and descendants reaped.
// Spawn never returns while the subprocess is still alive.
func (s *Supervisor) Spawn(ctx context.Context, argv []string, timeout time.Duration) Result {
	if len(argv) == 0 {
		return Result{Kind: KindSpawnError, ExitCode: -1}
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{Kind: KindKilled, ExitCode: -1}
	}
	defer func() { <-s.sem }()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	setDetached(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = 2 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if !s.register(cmd) {
		return Result{Kind: KindKilled, ExitCode: -1}
	}
	defer s.unregister(cmd)

	err := cmd.Run()

	switch {
	case err == nil:
		return Result{Stdout: out.String(), ExitCode: 0, Kind: KindOK}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return Result{Stdout: out.String(), ExitCode: -1, Kind: KindTimeout}
	case errors.Is(runCtx.Err(), context.Canceled):
		return Result{Stdout: out.String(), ExitCode: -1, Kind: KindKilled}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() < 0 {
				// Died to a signal (shutdown kill-all), not its own exit.
				return Result{Stdout: out.String(), ExitCode: -1, Kind: KindKilled}
			}
			return Result{Stdout: out.String(), ExitCode: exitErr.ExitCode(), Kind: KindOK}
		}
		s.log.Debug("spawn failed", zap.String("cmd", argv[0]), zap.Error(err))
		return Result{ExitCode: -1, Kind: KindSpawnError}
	}
}

func (s *Supervisor) register(cmd *exec.Cmd) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.procs[cmd] = struct{}{}
	return true
}

func (s *Supervisor) unregister(cmd *exec.Cmd) {
	s.mu.Lock()
	delete(s.procs, cmd)
	s.mu.Unlock()
}

// Active returns the number of tracked live subprocesses.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Shutdown terminates every tracked subprocess and refuses new spawns. It
// returns once the registry drains or the grace period expires.
func (s *Supervisor) Shutdown(grace time.Duration) {
	s.mu.Lock()
	s.closed = true
	pending := make([]*exec.Cmd, 0, len(s.procs))
	for cmd := range s.procs {
		pending = append(pending, cmd)
	}
	s.mu.Unlock()

	for _, cmd := range pending {
		if err := terminate(cmd); err != nil {
			s.log.Debug("terminate failed", zap.Error(err))
		}
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if s.Active() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.mu.Lock()
	remaining := make([]*exec.Cmd, 0, len(s.procs))
	for cmd := range s.procs {
		remaining = append(remaining, cmd)
	}
	s.mu.Unlock()

	for _, cmd := range remaining {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	if len(remaining) > 0 {
		s.log.Warn("force-killed subprocesses at shutdown", zap.Int("count", len(remaining)))
	}
}
