//go:build !windows

package process

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/malanthrax/Arandu-maxi/internal/config"
	"github.com/malanthrax/Arandu-maxi/internal/events"
	"github.com/malanthrax/Arandu-maxi/internal/testutils"
)

// serverScript is a stand-in llama-server: it prints one line on each
// stream and idles until terminated.
const serverScript = `#!/bin/sh
echo "build: fake llama-server $@"
echo "warning: no gpu found" >&2
trap 'exit 0' TERM
while true; do sleep 0.05; done
`

// stubbornScript ignores the graceful signal.
const stubbornScript = `#!/bin/sh
echo "ignoring signals"
trap '' TERM
while true; do sleep 0.05; done
`

// exitingScript quits on its own with a non-zero code.
const exitingScript = `#!/bin/sh
echo "loading model"
exit 3
`

func installScript(t *testing.T, script string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "llama-server"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.ExecutableDir = dir
	cfg.ActiveExecutableDir = dir
	return &cfg
}

func testSupervisor(t *testing.T, cfg *config.Config, pub events.Publisher) *Supervisor {
	t.Helper()
	s := NewSupervisor(Options{
		Config:         cfg,
		Events:         pub,
		Logger:         quietLogger(),
		ExecutableName: "llama-server",
		TermTimeout:    2 * time.Second,
	})
	t.Cleanup(s.ForceShutdown)
	return s
}

func TestLaunchOutputAndTerminate(t *testing.T) {
	cfg := installScript(t, serverScript)
	s := testSupervisor(t, cfg, nil)

	info, err := s.Launch(LaunchSpec{ModelPath: "/models/test-model.gguf"})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if info.State != StateRunning {
		t.Errorf("state = %q, want %q", info.State, StateRunning)
	}
	if info.PID <= 0 {
		t.Errorf("pid = %d", info.PID)
	}
	if info.ModelName != "test-model" {
		t.Errorf("model name = %q", info.ModelName)
	}

	var lines []string
	ok := testutils.WaitFor(t, 5*time.Second, func() bool {
		more, err := s.ReadNewOutput(info.ID)
		if err != nil {
			return false
		}
		lines = append(lines, more...)
		return len(lines) >= 2
	})
	if !ok {
		t.Fatalf("never saw both output lines, got %v", lines)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, tagStdout+"build:") {
		t.Errorf("stdout line missing or untagged: %v", lines)
	}
	if !strings.Contains(joined, tagStderr+"warning:") {
		t.Errorf("stderr line missing or untagged: %v", lines)
	}

	// The record's cursor has advanced past everything delivered; a
	// fresh read never replays.
	more, err := s.ReadNewOutput(info.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(more) != 0 {
		t.Errorf("lines delivered twice: %v", more)
	}

	if err := s.Terminate(info.ID); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if !testutils.WaitFor(t, 5*time.Second, func() bool { return len(s.List()) == 0 }) {
		t.Fatal("process still listed after terminate")
	}

	if _, err := s.ReadNewOutput(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("read after exit: err = %v, want ErrNotFound", err)
	}
}

func TestPumpRecordsExitMessage(t *testing.T) {
	s := testSupervisor(t, installScript(t, serverScript), nil)

	cmd := exec.Command("sh", "-c", "echo loading; exit 3")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("pipe stdout: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.Fatalf("pipe stderr: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	p := &proc{
		id:    "exit-test",
		cmd:   cmd,
		ring:  newOutputRing(10),
		done:  make(chan struct{}),
		alive: true,
		info:  Info{ID: "exit-test", State: StateRunning},
	}
	s.mu.Lock()
	s.procs[p.id] = p
	s.mu.Unlock()

	s.pump(p, stdout, stderr)

	lines := p.ring.consume()
	if len(lines) == 0 {
		t.Fatal("ring is empty after exit")
	}
	last := lines[len(lines)-1]
	if !strings.Contains(last, "exited with code 3") {
		t.Errorf("last output line = %q, want the exit message", last)
	}
	if p.info.State != StateFailed {
		t.Errorf("state = %q, want %q", p.info.State, StateFailed)
	}
}

func TestNaturalExitRemovesProcess(t *testing.T) {
	cfg := installScript(t, exitingScript)
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	s := testSupervisor(t, cfg, bus)
	info, err := s.Launch(LaunchSpec{ModelPath: "/models/m.gguf"})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	if !testutils.WaitFor(t, 5*time.Second, func() bool { return len(s.List()) == 0 }) {
		t.Fatal("exited process still listed")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type != events.TypeProcessStopped {
				continue
			}
			stopped, ok := ev.Payload.(Info)
			if !ok || stopped.ID != info.ID {
				t.Fatalf("unexpected payload %#v", ev.Payload)
			}
			if !strings.Contains(stopped.Message, "code 3") {
				t.Errorf("message = %q, want exit code 3", stopped.Message)
			}
			return
		case <-deadline:
			t.Fatal("no process-stopped event")
		}
	}
}

func TestLaunchPortNegotiation(t *testing.T) {
	cfg := installScript(t, serverScript)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port
	cfg.ServerPort = busy

	s := testSupervisor(t, cfg, nil)
	info, err := s.Launch(LaunchSpec{ModelPath: "/models/m.gguf"})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if info.Port == busy {
		t.Errorf("launched on the busy port %d", busy)
	}
	if info.Port < busy || info.Port >= busy+portProbeWindow {
		t.Errorf("port %d outside probe window", info.Port)
	}
}

func TestBuildInvocationCustomArgs(t *testing.T) {
	cfg := installScript(t, serverScript)
	cfg.Models["/models/llama/m.gguf"] = config.ModelConfig{
		CustomArgs: `--port 39171 --ctx-size 4096 --mmproj proj.gguf`,
	}
	s := testSupervisor(t, cfg, nil)

	inv, err := s.buildInvocation(LaunchSpec{ModelPath: "/models/llama/m.gguf"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if inv.port != 39171 && (inv.port < 39171 || inv.port >= 39171+portProbeWindow) {
		t.Errorf("custom --port not honored: %d", inv.port)
	}

	joined := strings.Join(inv.args, " ")
	if !strings.Contains(joined, "--ctx-size 4096") {
		t.Errorf("custom args missing: %v", inv.args)
	}
	if !strings.Contains(joined, filepath.Join("/models/llama", "proj.gguf")) {
		t.Errorf("companion path not resolved: %v", inv.args)
	}
	if strings.Count(joined, "--port") != 1 {
		t.Errorf("expected exactly one --port flag: %v", inv.args)
	}
	if !strings.HasPrefix(joined, fmt.Sprintf("-m /models/llama/m.gguf --host %s --port", cfg.ServerHost)) {
		t.Errorf("unexpected arg order: %v", inv.args)
	}
}

func TestTerminateUnknownIsNoop(t *testing.T) {
	s := testSupervisor(t, installScript(t, serverScript), nil)
	if err := s.Terminate("does-not-exist"); err != nil {
		t.Errorf("terminate unknown: %v", err)
	}
}

func TestShutdownStopsAll(t *testing.T) {
	cfg := installScript(t, serverScript)
	s := testSupervisor(t, cfg, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.Launch(LaunchSpec{ModelPath: fmt.Sprintf("/models/m%d.gguf", i)}); err != nil {
			t.Fatalf("launch %d: %v", i, err)
		}
	}
	if got := len(s.List()); got != 2 {
		t.Fatalf("listed %d processes, want 2", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !testutils.WaitFor(t, 5*time.Second, func() bool { return len(s.List()) == 0 }) {
		t.Error("processes still listed after shutdown")
	}
}

func TestForceShutdownKillsStubborn(t *testing.T) {
	cfg := installScript(t, stubbornScript)
	s := testSupervisor(t, cfg, nil)

	if _, err := s.Launch(LaunchSpec{ModelPath: "/models/m.gguf"}); err != nil {
		t.Fatalf("launch: %v", err)
	}

	s.ForceShutdown()

	if !testutils.WaitFor(t, 5*time.Second, func() bool { return len(s.List()) == 0 }) {
		t.Error("stubborn process survived force shutdown")
	}
}
