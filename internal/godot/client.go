// Package godot implements the client side of the Godot bridge protocol:
// newline-delimited JSON commands over a supervised TCP connection, with
// the editor launched on demand when nothing is listening yet.
package godot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// State is the supervisor's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const (
	DefaultPort           = 6789
	DefaultConnectTimeout = 5 * time.Second
	DefaultCommandTimeout = 10 * time.Second

	// listCommandsTimeout bounds the capability fetch issued right after
	// a successful dial. Fixed, independent of the per-command default.
	listCommandsTimeout = 5 * time.Second
)

// connectionLostError resolves every request that was in flight when the
// socket went away.
const connectionLostError = "Connection lost during command execution"

var (
	ErrNoProjectPath     = errors.New("no project path specified")
	ErrConnectInProgress = errors.New("connect already in progress")
)

// Launcher starts and stops the supervised process. Satisfied by
// *launch.Launcher.
type Launcher interface {
	Launch(projectPath string) error
	Kill()
	Running() bool
	Done() <-chan struct{}
}

// Options configure a Client. Zero values fall back to the defaults
// above.
type Options struct {
	ProjectPath    string // default project; Connect may override per call
	Port           int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	Logger         *slog.Logger
}

// ConnectOptions are the per-call parameters of Connect. Zero values
// fall back to the client's Options.
type ConnectOptions struct {
	ProjectPath string
	Port        int
	Timeout     time.Duration
	Restart     bool
}

// Client supervises the single connection to a Godot bridge. It owns the
// socket, the pending-request table, and the handle of a launched child
// process; no other component touches them.
type Client struct {
	launcher Launcher
	opts     Options
	log      *slog.Logger

	// dialFn is replaced in tests to script dial outcomes.
	dialFn func(ctx context.Context, addr string) (net.Conn, error)

	mu       sync.Mutex
	state    State
	conn     net.Conn
	gen      uint64 // bumped per established connection; guards stale read pumps
	pending  *pendingTable
	commands []CommandInfo

	// writeMu serializes frame writes so interleaved Sends cannot split
	// each other's lines.
	writeMu sync.Mutex
}

// New creates a disconnected Client.
func New(launcher Launcher, opts Options) *Client {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		launcher: launcher,
		opts:     opts,
		log:      log,
		dialFn: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		state:   StateDisconnected,
		pending: newPendingTable(),
	}
}

// Connect establishes the connection, launching the editor when nothing
// is listening yet. While already connected it returns the cached
// capability list without dialing; a second call during an in-flight
// connect is rejected with ErrConnectInProgress. Restart tears down the
// connection and process first, unconditionally.
func (c *Client) Connect(ctx context.Context, opts ConnectOptions) ([]CommandInfo, error) {
	if opts.Restart {
		c.Kill()
	}

	projectPath := opts.ProjectPath
	if projectPath == "" {
		projectPath = c.opts.ProjectPath
	}
	port := opts.Port
	if port == 0 {
		port = c.opts.Port
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.opts.ConnectTimeout
	}

	c.mu.Lock()
	switch c.state {
	case StateConnected:
		cmds := copyCommands(c.commands)
		c.mu.Unlock()
		return cmds, nil
	case StateConnecting:
		c.mu.Unlock()
		return nil, ErrConnectInProgress
	}
	if projectPath == "" {
		c.mu.Unlock()
		return nil, ErrNoProjectPath
	}
	c.state = StateConnecting
	c.mu.Unlock()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	// The deadline is computed once; the loop never recomputes remaining
	// time, it only compares against this timestamp.
	deadline := time.Now().Add(timeout)
	start := time.Now()

	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	launched := false
	var procDone <-chan struct{}
	var lastErr error

	for {
		if c.State() != StateConnecting {
			return nil, errors.New("connect aborted")
		}
		if !time.Now().Before(deadline) {
			return nil, c.connectTimeout(timeout, lastErr)
		}

		conn, err := c.dialFn(dctx, addr)
		if err == nil {
			return c.finishConnect(ctx, conn, addr)
		}

		if ctx.Err() != nil {
			c.setDisconnected()
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, c.connectTimeout(timeout, lastErr)
		}

		if !isConnRefused(err) {
			// Anything but a refusal is fatal to this connect call.
			c.setDisconnected()
			return nil, fmt.Errorf("dialing %s: %w", addr, err)
		}
		lastErr = err

		if !launched {
			c.log.Info("dial refused, launching godot", "project", projectPath)
			if lerr := c.launcher.Launch(projectPath); lerr != nil {
				c.setDisconnected()
				return nil, fmt.Errorf("launching godot: %w", lerr)
			}
			launched = true
			procDone = c.launcher.Done()
			continue
		}

		wait := backoffDelay(start, time.Now())
		c.log.Debug("dial refused, retrying", "wait", wait)
		select {
		case <-time.After(wait):
		case <-procDone:
			c.setDisconnected()
			return nil, errors.New("godot process exited before the connection was established")
		case <-ctx.Done():
			c.setDisconnected()
			return nil, ctx.Err()
		}
	}
}

func (c *Client) finishConnect(ctx context.Context, conn net.Conn, addr string) ([]CommandInfo, error) {
	pending := newPendingTable()

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		conn.Close()
		return nil, errors.New("connect aborted")
	}
	c.conn = conn
	c.pending = pending
	c.gen++
	gen := c.gen
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn, pending, gen)
	c.log.Info("connected to godot", "addr", addr)

	// Capability fetch runs over the ordinary command path. Its failure
	// does not fail the connect: the target may simply not implement
	// list_commands, in which case the commands are unknown.
	cmds := c.fetchCommands(ctx)

	c.mu.Lock()
	c.commands = cmds
	c.mu.Unlock()

	return copyCommands(cmds), nil
}

func (c *Client) fetchCommands(ctx context.Context) []CommandInfo {
	resp := c.Send(ctx, "list_commands", nil, listCommandsTimeout)
	if !resp.Success {
		c.log.Warn("capability fetch failed, continuing without a command list", "err", resp.Error)
		return nil
	}
	cmds := parseCommandList(resp.Data)
	if cmds == nil {
		c.log.Warn("capability fetch returned no parsable command list")
	}
	return cmds
}

// Send issues one command and blocks until its single resolution:
// the matching response, the timeout, a write failure, or a connection
// loss, whichever happens first. Expected failures are reported in-band
// on the returned Response, never as an error.
func (c *Client) Send(ctx context.Context, command string, args map[string]any, timeout time.Duration) *Response {
	if timeout <= 0 {
		timeout = c.opts.CommandTimeout
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return &Response{Success: false, Error: "Not connected to Godot"}
	}
	conn := c.conn
	pending := c.pending
	c.mu.Unlock()

	id, ch := pending.add(timeout)

	line, err := EncodeRequest(&Request{ID: id, Command: command, Args: args})
	if err != nil {
		pending.fail(id, fmt.Sprintf("Failed to encode command: %v", err))
		return <-ch
	}

	c.writeMu.Lock()
	_, werr := conn.Write(append(line, '\n'))
	c.writeMu.Unlock()
	if werr != nil {
		pending.fail(id, fmt.Sprintf("Failed to send command: %v", werr))
		return <-ch
	}

	select {
	case resp := <-ch:
		return resp
	case <-ctx.Done():
		// The remote may still execute the command, same as after a
		// timeout; only the local wait ends here.
		pending.fail(id, "Command cancelled")
		return <-ch
	}
}

// Kill tears down the socket without a protocol goodbye, terminates the
// launched process, and resolves everything still pending. Safe to call
// in any state.
func (c *Client) Kill() {
	c.mu.Lock()
	conn := c.conn
	pending := c.pending
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	pending.failAll(connectionLostError)
	if c.launcher != nil {
		c.launcher.Kill()
	}
}

// Shutdown is the process-exit alias for Kill.
func (c *Client) Shutdown() {
	c.Kill()
}

// Connected reports whether the supervisor currently holds an
// established connection.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AvailableCommands returns a copy of the capability list cached by the
// most recent successful connect.
func (c *Client) AvailableCommands() []CommandInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyCommands(c.commands)
}

// ProcessRunning reports whether a launched Godot process is alive.
func (c *Client) ProcessRunning() bool {
	if c.launcher == nil {
		return false
	}
	return c.launcher.Running()
}

// readLoop pumps raw socket bytes through the line buffer and resolves
// pending requests. It runs once per established connection and exits on
// the first read error.
func (c *Client) readLoop(conn net.Conn, pending *pendingTable, gen uint64) {
	var lines lineBuffer
	buf := make([]byte, 32*1024)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			lines.append(buf[:n])
			for {
				line, ok := lines.next()
				if !ok {
					break
				}
				c.handleLine(line, pending)
			}
		}
		if err != nil {
			c.handleDisconnect(conn, pending, gen, err)
			return
		}
	}
}

func (c *Client) handleLine(line []byte, pending *pendingTable) {
	resp, err := DecodeResponse(line)
	if err != nil {
		c.log.Warn("dropping malformed response line", "err", err, "line", truncateForLog(line))
		return
	}
	if !pending.resolve(resp) {
		c.log.Debug("dropping response with no pending request", "id", resp.ID)
	}
}

// handleDisconnect is the single recovery path for socket-level failures
// while connected. The generation check keeps a stale pump from tearing
// down a connection established after it.
func (c *Client) handleDisconnect(conn net.Conn, pending *pendingTable, gen uint64, err error) {
	c.mu.Lock()
	if c.gen == gen && c.state == StateConnected {
		c.state = StateDisconnected
		c.conn = nil
	}
	c.mu.Unlock()

	conn.Close()
	pending.failAll(connectionLostError)

	if errors.Is(err, io.EOF) {
		c.log.Info("connection closed by godot")
	} else {
		c.log.Warn("connection lost", "err", err)
	}
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
}

func (c *Client) connectTimeout(timeout time.Duration, lastErr error) error {
	c.setDisconnected()
	if lastErr != nil {
		return fmt.Errorf("connect timeout after %dms: %w", timeout.Milliseconds(), lastErr)
	}
	return fmt.Errorf("connect timeout after %dms", timeout.Milliseconds())
}

// backoffDelay returns the wait before the next dial: 100ms doubled per
// full second elapsed since the retry loop started, capped at one
// second.
func backoffDelay(start, now time.Time) time.Duration {
	shift := int(now.Sub(start) / time.Second)
	if shift > 3 {
		return time.Second
	}
	d := 100 * time.Millisecond << shift
	if d > time.Second {
		d = time.Second
	}
	return d
}

func isConnRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}

func copyCommands(in []CommandInfo) []CommandInfo {
	out := make([]CommandInfo, len(in))
	copy(out, in)
	return out
}

func truncateForLog(line []byte) string {
	const max = 200
	if len(line) <= max {
		return string(line)
	}
	return string(line[:max]) + "..."
}
