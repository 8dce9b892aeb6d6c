// Package process runs the external database tools (mysqldump, mysql,
// mongoimport, mongoexport, mongosh) and collects what they print.
//
// A Process is single use: configure it, Start it, optionally feed its
// standard input, then Finish. A non-zero exit is always returned as a
// *ProcessError carrying the captured stderr. There is no retry.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNotStarted is returned by input and Finish calls before Start.
var ErrNotStarted = errors.New("process not started")

// Output is the captured output of a finished process.
type Output struct {
	Stdout string
	Stderr string
}

// ProcessError reports a tool that could not start or exited non-zero.
// ExitCode is -1 when the process never ran to completion.
type ProcessError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

type Process struct {
	command string
	args    []string
	shell   bool
	silent  bool
	env     []string
	dir     string

	echoOut io.Writer
	echoErr io.Writer

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	inputClosed bool
	stdout      bytes.Buffer
	stderr      bytes.Buffer
	drain       *errgroup.Group
}

// New prepares command with its initial arguments.
func New(command string, args ...string) *Process {
	return &Process{
		command: command,
		args:    append([]string(nil), args...),
		echoOut: os.Stdout,
		echoErr: os.Stderr,
	}
}

func (p *Process) AddArgs(args ...string) *Process {
	p.args = append(p.args, args...)
	return p
}

// Shell runs the command line through sh -c so redirections and globs work.
// Arguments are joined with spaces and not quoted.
func (p *Process) Shell() *Process {
	p.shell = true
	return p
}

// Silent stops the output from being echoed to this process's stdout and
// stderr. It is still captured.
func (p *Process) Silent() *Process {
	p.silent = true
	return p
}

// Env adds KEY=VALUE pairs on top of the current environment.
func (p *Process) Env(kv ...string) *Process {
	p.env = append(p.env, kv...)
	return p
}

func (p *Process) Dir(dir string) *Process {
	p.dir = dir
	return p
}

// CommandLine is the command as it would be typed in a shell.
func (p *Process) CommandLine() string {
	return strings.TrimSpace(p.command + " " + strings.Join(p.args, " "))
}

// Args returns a copy of the argument list.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Environ returns the extra environment entries.
func (p *Process) Environ() []string {
	return append([]string(nil), p.env...)
}

// Start launches the process and begins draining its output.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process %s already started", p.command)
	}

	var cmd *exec.Cmd
	if p.shell {
		cmd = exec.CommandContext(ctx, "sh", "-c", p.CommandLine())
	} else {
		cmd = exec.CommandContext(ctx, p.command, p.args...)
	}
	cmd.Dir = p.dir
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return p.startError(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return p.startError(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return p.startError(err)
	}

	if err := cmd.Start(); err != nil {
		return p.startError(err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.drain = &errgroup.Group{}
	p.drain.Go(func() error { return p.copyOutput(&p.stdout, p.echoOut, stdout) })
	p.drain.Go(func() error { return p.copyOutput(&p.stderr, p.echoErr, stderr) })
	return nil
}

func (p *Process) startError(err error) error {
	return &ProcessError{Command: p.command, ExitCode: -1, Err: err}
}

func (p *Process) copyOutput(buf *bytes.Buffer, echo io.Writer, r io.Reader) error {
	var dst io.Writer = buf
	if !p.silent && echo != nil {
		dst = io.MultiWriter(buf, echo)
	}
	_, err := io.Copy(dst, r)
	return err
}

// Write sends data to the process's standard input.
func (p *Process) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return 0, ErrNotStarted
	}
	if p.inputClosed {
		return 0, fmt.Errorf("stdin of %s already closed", p.command)
	}
	return p.stdin.Write(data)
}

func (p *Process) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

// CopyInput streams r into standard input. It does not close the input.
func (p *Process) CopyInput(r io.Reader) (int64, error) {
	p.mu.Lock()
	if p.cmd == nil {
		p.mu.Unlock()
		return 0, ErrNotStarted
	}
	stdin := p.stdin
	p.mu.Unlock()
	return io.Copy(stdin, r)
}

// CloseInput signals end of input to tools that read a script from stdin.
func (p *Process) CloseInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return ErrNotStarted
	}
	if p.inputClosed {
		return nil
	}
	p.inputClosed = true
	return p.stdin.Close()
}

// Finish closes the input if still open, waits for exit and returns the
// captured output.
func (p *Process) Finish() (Output, error) {
	p.mu.Lock()
	if p.cmd == nil {
		p.mu.Unlock()
		return Output{}, ErrNotStarted
	}
	if !p.inputClosed {
		p.inputClosed = true
		p.stdin.Close()
	}
	cmd, drain := p.cmd, p.drain
	p.mu.Unlock()

	drainErr := drain.Wait()
	waitErr := cmd.Wait()

	out := Output{Stdout: p.stdout.String(), Stderr: p.stderr.String()}
	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return out, &ProcessError{Command: p.command, ExitCode: code, Stderr: out.Stderr, Err: waitErr}
	}
	if drainErr != nil {
		return out, &ProcessError{Command: p.command, ExitCode: 0, Stderr: out.Stderr, Err: drainErr}
	}
	return out, nil
}

// Run starts the process and waits for it without feeding input.
func (p *Process) Run(ctx context.Context) (Output, error) {
	if err := p.Start(ctx); err != nil {
		return Output{}, err
	}
	return p.Finish()
}

// RunWithInput starts the process, streams input into it and waits.
func (p *Process) RunWithInput(ctx context.Context, input io.Reader) (Output, error) {
	if err := p.Start(ctx); err != nil {
		return Output{}, err
	}
	if _, err := p.CopyInput(input); err != nil {
		// the exit status usually explains a broken pipe better
		out, finishErr := p.Finish()
		if finishErr != nil {
			return out, finishErr
		}
		return out, &ProcessError{Command: p.command, ExitCode: 0, Stderr: out.Stderr, Err: err}
	}
	return p.Finish()
}
