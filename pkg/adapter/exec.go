package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/crosscheck/pkg/logging"
	"github.com/user/crosscheck/pkg/model"
)

const (
	// DefaultOutputCap bounds stdout plus stderr of one subprocess.
	DefaultOutputCap int64 = 10 << 20
	// DefaultGrace is how long a terminated child gets before it is killed.
	DefaultGrace = 5 * time.Second
	// pipeDrain bounds how long Wait keeps reading pipes after the child
	// exits, in case a detached descendant still holds them.
	pipeDrain = 500 * time.Millisecond
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env holds KEY=VALUE pairs added to the minimal environment.
	Env []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// RunResult is a completed process. A non-zero ExitCode is not an error:
// many tools exit non-zero when they report findings.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner launches subprocesses under the adapter contract: minimal
// environment, no stdin, capped output, terminate-then-kill on cancellation.
// Each child runs in its own process group and signals go to the group.
type Runner struct {
	Cap    int64
	Grace  time.Duration
	Force  <-chan struct{}
	Logger *zap.SugaredLogger
}

// Runner returns a subprocess runner bound to o's limits.
func (o Options) Runner() *Runner {
	return &Runner{Cap: o.OutputCap, Force: o.Force, Logger: o.Logger}
}

// MinimalEnv returns PATH, HOME and TMPDIR from the host plus extra.
func MinimalEnv(extra ...string) []string {
	var env []string
	for _, k := range []string{"PATH", "HOME", "TMPDIR", "SYSTEMROOT"} {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return append(env, extra...)
}

// Run executes c and waits for it. The returned error is always a *Failure.
func (r *Runner) Run(ctx context.Context, c Command) (RunResult, error) {
	log := logging.OrNop(r.Logger)
	limit := r.Cap
	if limit <= 0 {
		limit = DefaultOutputCap
	}
	grace := r.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	if err := ctx.Err(); err != nil {
		return RunResult{}, AsFailure(err)
	}

	out := newCappedOutput(limit)
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = MinimalEnv(c.Env...)
	cmd.Stdin = nil
	cmd.Stdout = out.stream(&out.stdout)
	cmd.Stderr = out.stream(&out.stderr)
	cmd.WaitDelay = pipeDrain
	setProcessGroup(cmd)

	log.Debugw("starting subprocess", "cmd", c.String(), "dir", c.Dir)
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return RunResult{}, &Failure{Reason: model.ReasonNotAvailable, Err: err}
		}
		return RunResult{}, &Failure{Reason: model.ReasonExecFailed, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var (
		reason  model.Reason
		cause   error
		killAt  <-chan time.Time
		ctxDone = ctx.Done()
		force   = r.Force
		exceed  = out.exceeded
	)
	kill := func() {
		if err := signalGroup(cmd.Process, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Debugw("kill failed", "cmd", c.Name, "error", err)
		}
	}

	for {
		select {
		case err := <-done:
			res := RunResult{Stdout: out.stdout.Bytes(), Stderr: out.stderr.Bytes()}
			if cmd.ProcessState != nil {
				res.ExitCode = cmd.ProcessState.ExitCode()
			}
			if reason == "" && out.over() {
				reason = model.ReasonBufferExceeded
				cause = fmt.Errorf("output exceeded %d bytes", limit)
			}
			if reason != "" {
				// the leader is gone; reap anything it left behind
				kill()
				return RunResult{}, &Failure{Reason: reason, Err: cause}
			}
			if errors.Is(err, exec.ErrWaitDelay) {
				log.Debugw("descendants still held output pipes", "cmd", c.Name)
				kill()
				err = nil
			}
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) {
				return RunResult{}, &Failure{Reason: model.ReasonExecFailed, Err: err}
			}
			log.Debugw("subprocess finished", "cmd", c.Name, "exit", res.ExitCode, "bytes", out.n)
			return res, nil

		case <-ctxDone:
			ctxDone = nil
			if reason == "" {
				reason = AsFailure(ctx.Err()).Reason
				cause = ctx.Err()
			}
			if err := signalGroup(cmd.Process, syscall.SIGTERM); err != nil {
				kill()
			} else {
				killAt = time.After(grace)
			}

		case <-force:
			force = nil
			if reason == "" {
				reason = model.ReasonCancelled
				cause = errors.New("force terminated")
			}
			kill()

		case <-exceed:
			exceed = nil
			if reason == "" {
				reason = model.ReasonBufferExceeded
				cause = fmt.Errorf("output exceeded %d bytes", limit)
			}
			kill()

		case <-killAt:
			killAt = nil
			kill()
		}
	}
}

// cappedOutput shares one byte budget between stdout and stderr.
type cappedOutput struct {
	mu       sync.Mutex
	limit    int64
	n        int64
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	exceeded chan struct{}
	once     sync.Once
}

func newCappedOutput(limit int64) *cappedOutput {
	return &cappedOutput{limit: limit, exceeded: make(chan struct{})}
}

func (o *cappedOutput) over() bool {
	select {
	case <-o.exceeded:
		return true
	default:
		return false
	}
}

type cappedStream struct {
	out *cappedOutput
	buf *bytes.Buffer
}

func (o *cappedOutput) stream(buf *bytes.Buffer) *cappedStream {
	return &cappedStream{out: o, buf: buf}
}

// Write never fails so the child is not blocked on a closed pipe; bytes past
// the budget are dropped and the exceeded channel is closed.
func (s *cappedStream) Write(p []byte) (int, error) {
	o := s.out
	o.mu.Lock()
	defer o.mu.Unlock()
	room := o.limit - o.n
	if room <= 0 {
		o.once.Do(func() { close(o.exceeded) })
		return len(p), nil
	}
	chunk := p
	if int64(len(chunk)) > room {
		chunk = chunk[:room]
		o.once.Do(func() { close(o.exceeded) })
	}
	s.buf.Write(chunk)
	o.n += int64(len(chunk))
	return len(p), nil
}

// LookPath reports whether bin is on PATH.
func LookPath(bin string) bool {
	_, err := exec.LookPath(bin)
	return err == nil
}

// ProbeVersion runs bin with args and returns the first non-empty output line.
func ProbeVersion(bin string, args ...string) string {
	if !LookPath(bin) {
		return Unknown
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r := &Runner{Cap: 64 << 10, Grace: time.Second}
	res, err := r.Run(ctx, Command{Name: bin, Args: args})
	if err != nil {
		return Unknown
	}
	text := string(res.Stdout)
	if strings.TrimSpace(text) == "" {
		text = string(res.Stderr)
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return Unknown
}
