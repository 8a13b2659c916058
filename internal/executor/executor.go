package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Status classifies the result of running an action.
type Status int

const (
	Success Status = iota
	NoMatch
	NotFound
	Timeout
	RuntimeError
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case NoMatch:
		return "no_match"
	case NotFound:
		return "not_found"
	case Timeout:
		return "timeout"
	case RuntimeError:
		return "runtime_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the structured result of one Run. ExitCode is -1 when the child
// did not exit normally or never started.
type Outcome struct {
	Status    Status
	Output    string
	RawError  string
	ActionID  string
	Command   []string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

type Options struct {
	Timeout        time.Duration
	KillGrace      time.Duration
	MaxOutputBytes int64
	// EnvAllow names the parent environment variables passed to the child.
	EnvAllow []string
}

const (
	defaultTimeout        = 30 * time.Second
	defaultKillGrace      = 2 * time.Second
	defaultMaxOutputBytes = 1 << 20
)

// Executor runs registered actions as isolated child processes.
type Executor struct {
	reg  *Registry
	opts Options
	log  *zap.Logger
}

func New(reg *Registry, opts Options, logger *zap.Logger) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaultKillGrace
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutputBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{reg: reg, opts: opts, log: logger.Named("executor")}
}

// Registry returns the action registry the executor resolves against.
func (e *Executor) Registry() *Registry { return e.reg }

// Run invokes actionID with query as its single argument. It never returns an
// error; every failure is reported through the Outcome.
func (e *Executor) Run(ctx context.Context, actionID, query string) Outcome {
	out := Outcome{ActionID: actionID, ExitCode: -1}
	if actionID == "" {
		out.Status = NoMatch
		return out
	}

	inv, err := e.reg.Resolve(actionID)
	if err != nil {
		out.Status = NotFound
		out.RawError = err.Error()
		if !errors.Is(err, ErrUnknownAction) && !errors.Is(err, fs.ErrNotExist) {
			e.log.Warn("action not resolvable", zap.String("action", actionID), zap.Error(err))
		} else {
			e.log.Info("action missing", zap.String("action", actionID), zap.Error(err))
		}
		return out
	}

	argv := inv.Argv(query)
	out.Command = argv

	tctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, argv[0], argv[1:]...)
	cmd.Dir = filepath.Dir(inv.Path)
	cmd.Env = e.buildEnvironment()
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = e.opts.KillGrace

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: e.opts.MaxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, max: e.opts.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	e.log.Debug("starting action", zap.String("action", actionID), zap.Strings("argv", argv))
	start := time.Now()
	runErr := cmd.Run()
	out.Duration = time.Since(start)
	out.Truncated = stdout.truncated || stderr.truncated
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	stdoutText := strings.TrimSpace(stdoutBuf.String())
	stderrText := strings.TrimSpace(stderrBuf.String())

	switch {
	case runErr == nil:
		out.Status = Success
		out.Output = stdoutText
	case errors.Is(ctx.Err(), context.Canceled):
		out.Status = RuntimeError
		out.Output = stdoutText
		out.RawError = withDetail("action canceled: "+ctx.Err().Error(), stderrText)
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		// tctx inherits a parent deadline, so both land here.
		limit := e.opts.Timeout
		if ctx.Err() != nil {
			limit = out.Duration.Round(time.Millisecond)
		}
		out.Status = Timeout
		out.Output = stdoutText
		out.RawError = withDetail(fmt.Sprintf("action timed out after %s", limit), stderrText)
	default:
		out.Status = RuntimeError
		out.Output = stdoutText
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && stderrText != "" {
			out.RawError = stderrText
		} else {
			out.RawError = withDetail(runErr.Error(), stderrText)
		}
	}

	fields := []zap.Field{
		zap.String("action", actionID),
		zap.String("path", inv.Path),
		zap.Strings("argv", argv),
		zap.Stringer("status", out.Status),
		zap.Int("exit_code", out.ExitCode),
		zap.Duration("duration", out.Duration),
		zap.Bool("truncated", out.Truncated),
	}
	if out.Status == Success {
		e.log.Info("action finished", fields...)
	} else {
		e.log.Warn("action failed", append(fields, zap.String("error", out.RawError))...)
	}
	return out
}

func withDetail(msg, detail string) string {
	if detail == "" {
		return msg
	}
	return msg + ": " + detail
}

// buildEnvironment copies only the allowed variables from the parent.
func (e *Executor) buildEnvironment() []string {
	env := make([]string, 0, len(e.opts.EnvAllow))
	for _, key := range e.opts.EnvAllow {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return env
}
