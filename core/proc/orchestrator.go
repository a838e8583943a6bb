package proc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"josephlewis.net/pipesh/core/logger"
	"josephlewis.net/pipesh/core/shell"
)

// Exit statuses reported for stages that never reached a successful exec,
// matching the conventional shell values.
const (
	statusRedirectFailed = 1
	statusExecFailed     = 126
	statusNotFound       = 127
)

// Orchestrator turns parsed pipelines into OS processes. It runs on a
// single goroutine and only blocks at the explicit wait points: once per
// non-final stage, and on the final stage unless the pipeline is
// backgrounded.
type Orchestrator struct {
	// Resolver locates stage executables. Required.
	Resolver *Resolver

	// Stdin, Stdout and Stderr are the default descriptors for spawned
	// stages; redirections and pipes override them per stage. Stderr also
	// carries the orchestrator's own diagnostics. Nil values fall back to
	// the process's descriptors (Stdin may also be left nil to give
	// children an empty input).
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env is the environment for spawned stages, in "key=value" form.
	// Nil inherits the orchestrator's own environment.
	Env []string

	// Log optionally records stage events. A nil log discards them.
	Log *logger.SessionLog

	// Fatal is invoked when the OS cannot create a process at all, a
	// condition the shell cannot recover from. When nil the orchestrator
	// writes a diagnostic and exits the process non-zero.
	Fatal func(error)
}

// NewOrchestrator creates an orchestrator wired to the current process's
// standard streams.
func NewOrchestrator(resolver *Resolver) *Orchestrator {
	return &Orchestrator{
		Resolver: resolver,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

func (o *Orchestrator) stderr() io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return os.Stderr
}

func (o *Orchestrator) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

func (o *Orchestrator) fatal(err error) {
	if o.Fatal != nil {
		o.Fatal(err)
		return
	}
	fmt.Fprintf(o.stderr(), "pipesh: %v\n", err)
	os.Exit(1)
}

// spawned is the result of attempting one stage. cmd is nil when no process
// was created; status then holds the synthetic exit status the stage would
// have reported.
type spawned struct {
	cmd    *exec.Cmd
	status int
}

// Run executes a pipeline. Per stage the orchestrator transitions through
// pipe setup, spawn, and wait-or-detach; the descriptor-closing obligations
// at each transition are spelled out inline so they stay auditable.
//
// Stage creation is strictly sequential: every non-final stage is waited on
// before its successor is spawned. Inter-stage data transfer relies only on
// the pipe's own blocking and end-of-file semantics.
func (o *Orchestrator) Run(p *shell.Pipeline) {
	// Init: an empty pipeline is a no-op, no processes are created.
	if p == nil || len(p.Stages) == 0 {
		return
	}

	last := len(p.Stages) - 1

	// carry is the read end of the pipe feeding the next stage's stdin.
	// The parent owns it only between the writer's spawn and the
	// reader's spawn.
	var carry *os.File

	for i := range p.Stages {
		stage := &p.Stages[i]

		// PipeSetup: one pipe per adjacent stage pair, created
		// immediately before the writer is spawned. Both descriptors
		// are inheritable across process creation.
		var nextCarry, pipeW *os.File
		if i != last {
			r, w, err := os.Pipe()
			if err != nil {
				if carry != nil {
					carry.Close()
				}
				o.fatal(fmt.Errorf("pipe: %w", err))
				return
			}
			nextCarry, pipeW = r, w
		}

		// SpawnStage: the child receives carry on descriptor 0 and
		// pipeW on descriptor 1 where present, after its own
		// redirections are applied.
		res := o.spawn(stage, carry, pipeW)

		// The parent never reads carry nor writes pipeW; closing both
		// right after the spawn lets end-of-file propagate once the
		// sole writer exits. This also holds when the spawn failed:
		// closing the write end immediately gives the downstream
		// reader its end-of-file.
		if carry != nil {
			carry.Close()
		}
		if pipeW != nil {
			pipeW.Close()
		}
		carry = nextCarry

		// A stage that never started still owes its status to the
		// event log, in place of the wait that will never happen.
		if res.cmd == nil {
			o.Log.StageExit(0, res.status)
			continue
		}

		if i != last {
			// Non-final stages are always waited on before the
			// next stage is created. A non-zero status is reported
			// but never aborts the pipeline.
			o.wait(res.cmd)
			continue
		}

		// Wait-or-detach.
		if stage.Background {
			fmt.Fprintf(o.stderr(), "[background] %d\n", res.cmd.Process.Pid)
			o.Log.Background(res.cmd.Process.Pid)
			// Intentionally no wait: the process runs on and is
			// reaped by the OS when the shell exits.
			return
		}
		o.wait(res.cmd)
	}
}

// spawn resolves, redirects and starts one stage. pipeR and pipeW, when
// non-nil, take over descriptors 0 and 1 respectively; a file redirection
// on the same descriptor is still opened first (creating the target), then
// superseded, preserving the open-then-replace order of descriptor setup.
func (o *Orchestrator) spawn(stage *shell.Stage, pipeR, pipeW *os.File) spawned {
	path, err := o.Resolver.Resolve(stage.Cmd)
	if err != nil {
		fmt.Fprintf(o.stderr(), "%s: command not found\n", stage.Cmd)
		o.Log.UnknownCommand(stage.Cmd)
		return spawned{status: statusNotFound}
	}

	cmd := &exec.Cmd{
		Path:   path,
		Args:   stage.Args,
		Env:    o.Env,
		Stdin:  o.Stdin,
		Stdout: o.stdout(),
		Stderr: o.stderr(),
	}

	// Redirections: input read-only onto descriptor 0, output
	// create/write-only (no truncation) onto descriptor 1. The parent's
	// copies are closed as soon as the child holds its own.
	var redirects []io.Closer
	closeRedirects := func() {
		for _, c := range redirects {
			c.Close()
		}
	}

	if stage.Input != "" {
		f, err := os.Open(stage.Input)
		if err != nil {
			fmt.Fprintf(o.stderr(), "%s: %v\n", stage.Cmd, err)
			return spawned{status: statusRedirectFailed}
		}
		redirects = append(redirects, f)
		cmd.Stdin = f
	}
	if stage.Output != "" {
		f, err := os.OpenFile(stage.Output, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(o.stderr(), "%s: %v\n", stage.Cmd, err)
			closeRedirects()
			return spawned{status: statusRedirectFailed}
		}
		redirects = append(redirects, f)
		cmd.Stdout = f
	}

	// Pipe ends supersede redirections on the descriptors they occupy.
	if pipeR != nil {
		cmd.Stdin = pipeR
	}
	if pipeW != nil {
		cmd.Stdout = pipeW
	}

	if err := cmd.Start(); err != nil {
		closeRedirects()
		if isExecFailure(err) {
			// The resolved path could not be loaded as a program
			// image. Fatal only to this stage.
			fmt.Fprintf(o.stderr(), "failed to execute: %s\n", path)
			return spawned{status: statusExecFailed}
		}
		// The process-creation primitive itself failed; the shell
		// cannot make forward progress.
		o.fatal(fmt.Errorf("start %s: %w", path, err))
		return spawned{status: statusExecFailed}
	}

	closeRedirects()
	return spawned{cmd: cmd}
}

// wait blocks until cmd terminates and reports a non-zero status to the
// error stream. The pipeline proceeds regardless of the status.
func (o *Orchestrator) wait(cmd *exec.Cmd) int {
	err := cmd.Wait()
	status := exitStatus(err)
	if status != 0 {
		fmt.Fprintf(o.stderr(), "process %d exited with status %d\n", cmd.Process.Pid, status)
	}
	o.Log.StageExit(cmd.Process.Pid, status)
	return status
}

// isExecFailure reports whether a Start error means the program image could
// not be loaded, as opposed to the OS being unable to create a process.
func isExecFailure(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.ENOEXEC)
}

// exitStatus extracts the exit status from a Wait error.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return 1
}
