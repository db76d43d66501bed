// Package process implements the TenantProcessManager (C5): it spawns,
// health-checks and supervises one tenant worker subprocess per
// tenant, allocating ports from a fixed pool.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
)

// State is a TenantWorker's lifecycle stage.
type State int

const (
	StateStarting State = iota
	StateHealthy
	StateDegraded
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker describes a supervised tenant worker subprocess.
type Worker struct {
	TenantID  string
	Port      int
	Endpoint  string
	State     State
	StartedAt time.Time

	cmd    *exec.Cmd
	health HealthChecker
}

// HealthChecker is the subset of the RPC client TenantProcessManager
// needs to poll liveness; satisfied by RPCDialer's rpcHealthChecker
// (dialer.go), which wraps an rpcpool-backed rpcapi.TenantWorkerClient,
// in production and by a fake in tests.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (bool, error)
	Close() error
}

// Dialer builds a HealthChecker bound to endpoint.
type Dialer interface {
	Dial(endpoint string) (HealthChecker, error)
}

// Launcher starts the tenant worker subprocess for tenantID listening
// on port, returning the running *exec.Cmd.
type Launcher interface {
	Launch(ctx context.Context, tenantID string, port int) (*exec.Cmd, error)
}

// LaunchFunc adapts a plain function to Launcher.
type LaunchFunc func(ctx context.Context, tenantID string, port int) (*exec.Cmd, error)

func (f LaunchFunc) Launch(ctx context.Context, tenantID string, port int) (*exec.Cmd, error) {
	return f(ctx, tenantID, port)
}

var ErrManagerDisposed = errors.New("process: manager has been disposed")

// Options configures a Manager. Zero values fall back to the spec
// defaults (30 health polls at 1s, 5s graceful-stop timeout).
type Options struct {
	MinPort            int
	MaxPort            int
	HealthPollAttempts int
	HealthPollInterval time.Duration
	StopTimeout        time.Duration
	Launcher           Launcher
	Dialer             Dialer
	Logf               func(format string, args ...interface{})
}

// Manager owns every TenantWorker's lifecycle: starting, opportunistic
// health re-checks, stopping, and bounded-concurrency disposal.
type Manager struct {
	mu       sync.Mutex
	pool     *PortPool
	workers  map[string]*Worker
	disposed bool

	healthPollAttempts int
	healthPollInterval time.Duration
	stopTimeout        time.Duration
	launcher           Launcher
	dialer             Dialer
	logf               func(format string, args ...interface{})
}

// NewManager builds a Manager from opts.
func NewManager(opts Options) *Manager {
	minPort, maxPort := opts.MinPort, opts.MaxPort
	if minPort == 0 && maxPort == 0 {
		minPort, maxPort = 5001, 5100
	}
	attempts := opts.HealthPollAttempts
	if attempts == 0 {
		attempts = 30
	}
	interval := opts.HealthPollInterval
	if interval == 0 {
		interval = time.Second
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout == 0 {
		stopTimeout = 5 * time.Second
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}

	return &Manager{
		pool:               NewPortPool(minPort, maxPort),
		workers:            make(map[string]*Worker),
		healthPollAttempts: attempts,
		healthPollInterval: interval,
		stopTimeout:        stopTimeout,
		launcher:           opts.Launcher,
		dialer:             opts.Dialer,
		logf:               logf,
	}
}

// GetOrStart returns a healthy worker for tenantID, starting one if
// none is running or the existing one has gone degraded.
func (m *Manager) GetOrStart(ctx context.Context, tenantID string) (*Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, ErrManagerDisposed
	}

	if w, ok := m.workers[tenantID]; ok {
		if w.State == StateHealthy {
			if m.recheckHealthLocked(ctx, w) {
				return w, nil
			}
			w.State = StateDegraded
		}
		m.stopLocked(tenantID)
	}

	return m.startTenantLocked(ctx, tenantID)
}

func (m *Manager) recheckHealthLocked(ctx context.Context, w *Worker) bool {
	hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ok, err := w.health.HealthCheck(hctx)
	return err == nil && ok
}

func (m *Manager) startTenantLocked(ctx context.Context, tenantID string) (*Worker, error) {
	port, err := m.pool.Acquire()
	if err != nil {
		return nil, errs.Wrap(errs.KindWorkerUnavailable, err, "no ports available to start tenant worker")
	}

	cmd, err := m.launcher.Launch(ctx, tenantID, port)
	if err != nil {
		m.pool.Release(port)
		return nil, errs.Wrap(errs.KindWorkerUnavailable, err, "failed to spawn tenant worker process")
	}

	endpoint := fmt.Sprintf("localhost:%d", port)
	health, err := m.dialer.Dial(endpoint)
	if err != nil {
		killProcess(cmd, m.stopTimeout)
		m.pool.Release(port)
		return nil, errs.Wrap(errs.KindWorkerUnavailable, err, "failed to connect to tenant worker")
	}

	w := &Worker{
		TenantID: tenantID,
		Port:     port,
		Endpoint: endpoint,
		State:    StateStarting,
		cmd:      cmd,
		health:   health,
	}

	healthy := false
	for attempt := 0; attempt < m.healthPollAttempts; attempt++ {
		hctx, cancel := context.WithTimeout(ctx, m.healthPollInterval)
		ok, _ := health.HealthCheck(hctx)
		cancel()
		if ok {
			healthy = true
			break
		}
		time.Sleep(m.healthPollInterval)
	}

	if !healthy {
		health.Close()
		killProcess(cmd, m.stopTimeout)
		m.pool.Release(port)
		return nil, errs.New(errs.KindWorkerTimeout, "tenant worker did not become healthy: WorkerStartupTimeout")
	}

	w.State = StateHealthy
	w.StartedAt = time.Now()
	m.workers[tenantID] = w
	m.logf("process: tenant %s worker healthy on port %d", tenantID, port)
	return w, nil
}

// Endpoint implements command.WorkerEndpoint: it returns a healthy
// tenant worker's endpoint, starting one if necessary.
func (m *Manager) Endpoint(ctx context.Context, tenantID string) (string, error) {
	w, err := m.GetOrStart(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return w.Endpoint, nil
}

// Recheck implements command.WorkerEndpoint: it stops tenantID's
// worker unconditionally and starts a fresh one, used for the
// dispatcher's single automatic retry after a transport failure.
func (m *Manager) Recheck(ctx context.Context, tenantID string) (string, error) {
	m.StopTenant(tenantID)
	return m.Endpoint(ctx, tenantID)
}

// StopTenant disposes tenantID's channel, gracefully terminates its
// process, and releases its port. Stopping an unknown tenant is a
// no-op.
func (m *Manager) StopTenant(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(tenantID)
}

func (m *Manager) stopLocked(tenantID string) {
	w, ok := m.workers[tenantID]
	if !ok {
		return
	}
	delete(m.workers, tenantID)

	if w.health != nil {
		w.health.Close()
	}
	killProcess(w.cmd, m.stopTimeout)
	m.pool.Release(w.Port)
	w.State = StateStopped
	m.logf("process: stopped tenant %s worker on port %d", tenantID, w.Port)
}

// Dispose stops every running worker, at most 4 concurrently, and
// marks the manager unusable for further starts. Safe to call more
// than once.
func (m *Manager) Dispose(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			m.mu.Lock()
			w, ok := m.workers[id]
			delete(m.workers, id)
			m.mu.Unlock()
			if !ok {
				return nil
			}
			if w.health != nil {
				w.health.Close()
			}
			killProcess(w.cmd, m.stopTimeout)
			m.mu.Lock()
			m.pool.Release(w.Port)
			w.State = StateStopped
			m.mu.Unlock()
			m.logf("process: stopped tenant %s worker on port %d", id, w.Port)
			return nil
		})
	}
	return g.Wait()
}

// Count returns the number of currently tracked workers, for tests and
// metrics.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

func killProcess(cmd *exec.Cmd, timeout time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck

	select {
	case <-done:
		return
	case <-time.After(timeout):
		cmd.Process.Kill() //nolint:errcheck
		<-done
	}
}

// DefaultLauncher spawns binaryPath with TENANT_ID and RPC_PORT
// environment variables set, streaming its stdout/stderr through logf
// prefixed by tenant id.
func DefaultLauncher(binaryPath string, extraArgs []string, logf func(format string, args ...interface{})) LaunchFunc {
	if logf == nil {
		logf = log.Printf
	}
	return func(ctx context.Context, tenantID string, port int) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, binaryPath, extraArgs...)
		cmd.Env = append(os.Environ(),
			"TENANT_ID="+tenantID,
			"RPC_PORT="+strconv.Itoa(port),
		)

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, err
		}

		if err := cmd.Start(); err != nil {
			return nil, err
		}

		go streamLogs(logf, tenantID, "stdout", stdout)
		go streamLogs(logf, tenantID, "stderr", stderr)

		return cmd, nil
	}
}

func streamLogs(logf func(format string, args ...interface{}), tenantID, stream string, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			logf("process: tenant=%s %s: %s", tenantID, stream, string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
