package ports

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dispatchd/internal/common/fsutil"
)

// Process is a backend process started by a Launcher.
type Process interface {
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Terminate asks the process to exit and kills it after grace.
	Terminate(grace time.Duration) error
}

// Launcher starts a backend bound to host:port.
type Launcher interface {
	Launch(ctx context.Context, host string, port int) (Process, error)
}

// ExecLauncher spawns Bin with Args. "{host}" and "{port}" in Args are
// substituted, and OLLAMA_HOST is set to host:port in the child environment.
type ExecLauncher struct {
	Bin    string
	Args   []string
	Env    []string
	Logger *zerolog.Logger
}

const stderrTailBytes = 4096

func (l ExecLauncher) Launch(_ context.Context, host string, port int) (Process, error) {
	bin, err := fsutil.ResolveBinary(l.Bin)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	args := make([]string, len(l.Args))
	for i, a := range l.Args {
		a = strings.ReplaceAll(a, "{port}", strconv.Itoa(port))
		args[i] = strings.ReplaceAll(a, "{host}", host)
	}
	// The child must outlive the request that resolved its port, so it is
	// not bound to ctx.
	cmd := exec.Command(bin, args...)
	cmd.Env = append(append(os.Environ(), l.Env...), "OLLAMA_HOST="+addr)
	tail := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	p := &execProcess{cmd: cmd, stderr: tail, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	if l.Logger != nil {
		l.Logger.Info().Str("bin", bin).Int("pid", cmd.Process.Pid).Str("addr", addr).Msg("launcher event=start")
	}
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	stderr  *tailBuffer
	done    chan struct{}
	waitErr error
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Done() <-chan struct{} { return p.done }

// Terminate sends SIGTERM and falls back to kill after grace.
func (p *execProcess) Terminate(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = p.cmd.Process.Kill()
		<-p.done
		return nil
	}
	select {
	case <-p.done:
	case <-time.After(grace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	return nil
}

// ExitError describes how the process ended, including a stderr tail.
// Only meaningful after Done is closed.
func (p *execProcess) ExitError() error {
	tail := p.stderr.String()
	if p.waitErr == nil {
		return fmt.Errorf("exited cleanly; stderr tail: %s", tail)
	}
	return fmt.Errorf("%v; stderr tail: %s", p.waitErr, tail)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
