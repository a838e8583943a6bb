package core

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abiosoft/readline"

	"josephlewis.net/pipesh/core/logger"
	"josephlewis.net/pipesh/core/proc"
	"josephlewis.net/pipesh/core/shell"
)

const (
	EnvPrompt = "PS1"

	DefaultPrompt = "$ "
)

// ShellOptions configure a Shell. The zero value runs against the current
// process's standard streams with the default builtin set.
type ShellOptions struct {
	// Stdin, Stdout and Stderr are the session's streams. Nil values fall
	// back to the process's own.
	Stdin  io.ReadCloser
	Stdout io.Writer
	Stderr io.Writer

	// ProcStdin is the default standard input handed to foreground
	// processes. It is distinct from Stdin because the read loop owns
	// Stdin; on a terminal both are the terminal, on a network session
	// children get no input unless redirected or piped.
	ProcStdin io.Reader

	// Prompt is used when the PS1 environment variable is unset.
	Prompt string

	// Builtins maps command names to handlers dispatched before any
	// parsing or process creation. Nil means DefaultBuiltins.
	Builtins map[string]Builtin

	// Resolver locates executables. Nil means a resolver over the host
	// filesystem and environment.
	Resolver *proc.Resolver

	// Log optionally records session events.
	Log *logger.SessionLog

	// IsTerminal tells the line editor whether the session is
	// interactive.
	IsTerminal bool

	// Fatal is passed through to the orchestrator; see
	// proc.Orchestrator.Fatal.
	Fatal func(error)
}

// Shell is the interactive driver: it reads lines, dispatches builtins, and
// hands everything else to the parser and orchestrator.
type Shell struct {
	readline *readline.Instance
	builtins map[string]Builtin
	orch     *proc.Orchestrator
	log      *logger.SessionLog
	stderr   io.Writer
	prompt   string
}

// NewShell creates a shell from opts.
func NewShell(opts ShellOptions) (*Shell, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Builtins == nil {
		opts.Builtins = DefaultBuiltins()
	}
	if opts.Resolver == nil {
		opts.Resolver = proc.NewResolver()
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}

	cfg := &readline.Config{
		Stdin:  readline.NewCancelableStdin(opts.Stdin),
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		FuncIsTerminal: func() bool {
			return opts.IsTerminal
		},
	}
	if err := cfg.Init(); err != nil {
		return nil, err
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}

	return &Shell{
		readline: rl,
		builtins: opts.Builtins,
		orch: &proc.Orchestrator{
			Resolver: opts.Resolver,
			Stdin:    opts.ProcStdin,
			Stdout:   opts.Stdout,
			Stderr:   opts.Stderr,
			Log:      opts.Log,
			Fatal:    opts.Fatal,
		},
		log:    opts.Log,
		stderr: opts.Stderr,
		prompt: opts.Prompt,
	}, nil
}

// Prompt returns the prompt for the next read, taken from PS1 with a
// configured fallback.
func (s *Shell) Prompt() string {
	if prompt := os.Getenv(EnvPrompt); prompt != "" {
		return prompt
	}
	return s.prompt
}

// Run is the main loop. It returns the session's exit status: zero on an
// explicit exit or end of input. Child failures are reported as
// diagnostics, never escalated to the shell's own status.
func (s *Shell) Run() int {
	for {
		s.readline.SetPrompt(s.Prompt())
		line, err := s.readline.Readline()

		switch {
		case err == io.EOF:
			return 0 // Input closed, quit.

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			fmt.Fprintf(s.stderr, "pipesh: read: %v\n", err)
			return 1
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if s.dispatch(line) {
			return 0
		}
	}
}

// dispatch handles one non-empty line and reports whether the session
// should end.
func (s *Shell) dispatch(line string) (done bool) {
	fields := strings.Fields(line)

	// Builtins bypass parsing and process creation entirely.
	if builtin, ok := s.builtins[fields[0]]; ok {
		switch err := builtin(Env{Stdout: s.readline, Stderr: s.stderr}, fields); err {
		case nil:
			return false
		case ErrExit:
			return true
		default:
			fmt.Fprintf(s.stderr, "-pipesh: %v\n", err)
			return false
		}
	}

	pipeline, err := shell.Parse(line)
	if err != nil {
		fmt.Fprintf(s.stderr, "-pipesh: %v\n", err)
		return false
	}

	argv := make([][]string, 0, len(pipeline.Stages))
	for _, stage := range pipeline.Stages {
		argv = append(argv, stage.Args)
	}
	s.log.LineExecuted(line, argv)

	s.orch.Run(pipeline)
	return false
}

// Close releases the line editor.
func (s *Shell) Close() error {
	return s.readline.Close()
}
