package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/malanthrax/Arandu-maxi/internal/config"
	"github.com/malanthrax/Arandu-maxi/internal/events"
)

// Options configures the supervisor.
type Options struct {
	// Config provides executable locations and per-model launch settings.
	Config *config.Config

	// Events receives process lifecycle events. Default: Discard.
	Events events.Publisher

	// Logger receives diagnostic messages.
	Logger logrus.FieldLogger

	// ExecutableName overrides the server binary name. Default:
	// llama-server (llama-server.exe on Windows).
	ExecutableName string

	// OutputLines bounds the per-process output ring. Default: 1000.
	OutputLines int

	// TermTimeout bounds the graceful-stop wait before escalating to a
	// forceful kill. Default: 5s.
	TermTimeout time.Duration
}

// Supervisor owns the table of running server processes.
type Supervisor struct {
	cfg         *config.Config
	events      events.Publisher
	log         logrus.FieldLogger
	exeName     string
	ringCap     int
	termTimeout time.Duration

	mu    sync.Mutex
	procs map[string]*proc

	// resolveMu serializes executable resolution: promotion writes the
	// shared config (active dir, save-back), which concurrent launches
	// must not interleave.
	resolveMu sync.Mutex
}

// proc is one supervised child. Info fields are guarded by the
// supervisor mutex; the signal lock serializes signal delivery against
// the pump reaping the process, so nothing ever signals a reaped pid.
type proc struct {
	id   string
	info Info
	cmd  *exec.Cmd
	ring *outputRing
	done chan struct{}

	sigMu sync.Mutex
	alive bool
}

// signal delivers fn to the child if it has not been reaped yet.
func (p *proc) signal(fn func(*exec.Cmd) error) error {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	if !p.alive {
		return nil
	}
	return fn(p.cmd)
}

// trySignal is signal without blocking: when the lock is contended the
// delivery is skipped. Used only by ForceShutdown.
func (p *proc) trySignal(fn func(*exec.Cmd) error) {
	if !p.sigMu.TryLock() {
		return
	}
	defer p.sigMu.Unlock()
	if p.alive {
		fn(p.cmd)
	}
}

// NewSupervisor creates a process supervisor.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Config == nil {
		cfg := config.Default()
		opts.Config = &cfg
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.ExecutableName == "" {
		opts.ExecutableName = defaultExecutableName
	}
	if opts.OutputLines <= 0 {
		opts.OutputLines = defaultRingLines
	}
	if opts.TermTimeout <= 0 {
		opts.TermTimeout = 5 * time.Second
	}
	return &Supervisor{
		cfg:         opts.Config,
		events:      opts.Events,
		log:         opts.Logger,
		exeName:     opts.ExecutableName,
		ringCap:     opts.OutputLines,
		termTimeout: opts.TermTimeout,
		procs:       make(map[string]*proc),
	}
}

// LaunchSpec describes a server launch request. Zero fields fall back
// to the model's configuration entry.
type LaunchSpec struct {
	ModelPath  string
	Host       string
	Port       int
	CustomArgs string
	Env        map[string]string
}

// invocation is a fully resolved server command line.
type invocation struct {
	exePath string
	args    []string
	host    string
	port    int
	env     []string
}

// buildInvocation resolves the executable and assembles the command
// line: custom args are tokenized, a --port inside them overrides the
// configured port, then every port flag is stripped and the negotiated
// port appended, so exactly one port reaches the child.
func (s *Supervisor) buildInvocation(spec LaunchSpec) (invocation, error) {
	if spec.ModelPath == "" {
		return invocation{}, fmt.Errorf("process: model path is required")
	}

	exePath, err := s.resolveExecutable()
	if err != nil {
		return invocation{}, err
	}

	mc := s.cfg.ModelConfigFor(spec.ModelPath)
	host := spec.Host
	if host == "" {
		host = mc.Host
	}
	requested := spec.Port
	if requested == 0 {
		requested = mc.Port
	}
	customArgs := spec.CustomArgs
	if customArgs == "" {
		customArgs = mc.CustomArgs
	}

	custom := tokenizeArgs(customArgs)
	if p := parsePort(custom); p != 0 {
		requested = p
	}
	custom = stripPortArgs(custom)
	custom = resolveModelPaths(custom, filepath.Dir(spec.ModelPath))

	port := findAvailablePort(requested)
	if port != requested {
		s.log.WithFields(logrus.Fields{"requested": requested, "using": port}).
			Warn("requested port busy, using fallback")
	}

	args := []string{"-m", spec.ModelPath, "--host", host, "--port", strconv.Itoa(port)}
	args = append(args, custom...)

	env := os.Environ()
	for k, v := range mc.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	return invocation{exePath: exePath, args: args, host: host, port: port, env: env}, nil
}

// Launch starts a supervised server process for the given model and
// returns its initial snapshot. The process appears in List until it
// exits or is terminated.
func (s *Supervisor) Launch(spec LaunchSpec) (Info, error) {
	inv, err := s.buildInvocation(spec)
	if err != nil {
		return Info{}, err
	}

	cmd := exec.Command(inv.exePath, inv.args...)
	cmd.Dir = filepath.Dir(inv.exePath)
	cmd.Env = inv.env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Info{}, fmt.Errorf("pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Info{}, fmt.Errorf("pipe stderr: %w", err)
	}

	info := Info{
		ID:        uuid.NewString(),
		ModelName: modelNameFromPath(spec.ModelPath),
		ModelPath: spec.ModelPath,
		Host:      inv.host,
		Port:      inv.port,
		State:     StateStarting,
		StartTime: time.Now(),
	}

	if err := cmd.Start(); err != nil {
		info.State = StateFailed
		info.Message = err.Error()
		return info, fmt.Errorf("start %s: %w", inv.exePath, err)
	}
	info.State = StateRunning
	info.PID = cmd.Process.Pid
	info.Message = fmt.Sprintf("Server running on %s:%d", inv.host, inv.port)

	p := &proc{
		id:    info.ID,
		cmd:   cmd,
		ring:  newOutputRing(s.ringCap),
		done:  make(chan struct{}),
		alive: true,
		info:  info,
	}

	s.mu.Lock()
	s.procs[p.id] = p
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"id":    p.id,
		"model": info.ModelName,
		"pid":   info.PID,
		"port":  info.Port,
	}).Info("server process started")
	s.events.Publish(events.Event{Type: events.TypeProcessStarted, ID: p.id, Payload: info})

	go s.pump(p, stdout, stderr)

	return info, nil
}

// LaunchExternal starts the server for the given model in an external
// terminal window. The process is not supervised.
func (s *Supervisor) LaunchExternal(spec LaunchSpec) error {
	inv, err := s.buildInvocation(spec)
	if err != nil {
		return err
	}
	if err := launchExternalTerminal(inv.exePath, inv.args, filepath.Dir(inv.exePath), inv.env); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"model": modelNameFromPath(spec.ModelPath),
		"port":  inv.port,
	}).Info("server started in external terminal")
	return nil
}

// Get returns a snapshot of one supervised process.
func (s *Supervisor) Get(id string) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	return p.info, nil
}

// List returns snapshots of all supervised processes, oldest first.
func (s *Supervisor) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// ReadNewOutput returns the output lines produced since the previous
// read of this process and advances the record's read cursor, so no
// line is ever delivered twice. Reading an unknown id is an error: the
// caller's process is gone and polling it further is a bug worth
// surfacing.
func (s *Supervisor) ReadNewOutput(id string) ([]string, error) {
	s.mu.Lock()
	p, ok := s.procs[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return p.ring.consume(), nil
}

// Terminate stops a process gracefully, escalating to a forceful kill
// when it does not exit within the configured timeout. Terminating an
// unknown or already-exited process is a no-op.
func (s *Supervisor) Terminate(id string) error {
	s.mu.Lock()
	p, ok := s.procs[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := p.signal(terminateProcess); err != nil {
		s.log.WithField("id", id).WithError(err).Debug("graceful signal failed")
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(s.termTimeout):
	}

	s.log.WithField("id", id).Warn("graceful stop timed out, killing")
	if err := p.signal(forceKill); err != nil {
		s.log.WithField("id", id).WithError(err).Debug("force kill failed")
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(s.termTimeout):
		return fmt.Errorf("process %s did not exit after kill", id)
	}
}
