// Package launch starts and stops the supervised Godot process.
package launch

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// settleDelay gives a freshly spawned process a moment to begin
	// opening its listener before the first dial. Not a readiness probe.
	settleDelay = 300 * time.Millisecond

	// killGrace is how long a terminated process gets to exit before
	// escalation to SIGKILL.
	killGrace = 500 * time.Millisecond
)

var lookPathFn = exec.LookPath

// Launcher spawns the Godot process for a project and tracks its
// lifetime. Each process runs in its own process group so Kill can
// terminate the whole tree.
type Launcher struct {
	command string
	settle  time.Duration
	grace   time.Duration

	// newCmd builds the command for a project path. Tests replace it to
	// spawn a controllable process instead of a real editor.
	newCmd func(projectPath string) *exec.Cmd

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// New creates a Launcher that spawns the given command, "godot" being
// the usual value.
func New(command string) *Launcher {
	l := &Launcher{
		command: command,
		settle:  settleDelay,
		grace:   killGrace,
	}
	l.newCmd = func(projectPath string) *exec.Cmd {
		return exec.Command(l.command, "--path", projectPath)
	}
	return l
}

// Launch spawns the process pointed at projectPath and returns once the
// spawn has been accepted and a short settle delay has passed. It does
// not wait for the process to become ready. Launching while a previous
// process is still running is an error; Kill or a restart must tear the
// old one down first.
func (l *Launcher) Launch(projectPath string) error {
	l.mu.Lock()
	if l.runningLocked() {
		pid := l.cmd.Process.Pid
		l.mu.Unlock()
		return fmt.Errorf("godot process already running (pid %d)", pid)
	}

	if _, err := lookPathFn(l.command); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("launch command %q not found in PATH", l.command)
	}

	cmd := l.newCmd(projectPath)
	// Child output stays visible for diagnosis but off stdout, which
	// belongs to the MCP transport.
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("spawning %s: %w", l.command, err)
	}

	done := make(chan struct{})
	l.cmd = cmd
	l.done = done
	l.mu.Unlock()

	// Reap the child in the background to avoid zombies and to observe
	// an unexpected exit while a connect attempt is still in flight.
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	time.Sleep(l.settle)
	return nil
}

// Kill requests graceful termination of the launched process group and
// escalates to SIGKILL after the grace period. Killing when nothing is
// running, or after the process already exited, is a no-op.
func (l *Launcher) Kill() {
	l.mu.Lock()
	cmd := l.cmd
	done := l.done
	l.cmd = nil
	l.done = nil
	l.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	select {
	case <-done:
		return
	default:
	}

	// Negative pid addresses the whole process group, including any
	// subprocesses the editor spawned.
	pgid := cmd.Process.Pid
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		// Already gone; reaping finishes in the background.
		return
	}

	select {
	case <-done:
	case <-time.After(l.grace):
		_ = unix.Kill(-pgid, unix.SIGKILL)
		<-done
	}
}

// Running reports whether a launched process is still alive.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runningLocked()
}

// Done returns a channel that closes when the launched process exits.
// Before any launch it returns nil, which blocks forever in a select.
func (l *Launcher) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *Launcher) runningLocked() bool {
	if l.cmd == nil || l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}
