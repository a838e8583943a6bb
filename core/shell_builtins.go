package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pborman/getopt/v2"
)

// ErrExit is returned by the exit builtin to stop the read loop. The shell
// process then terminates with status zero.
var ErrExit = errors.New("exit")

// Env carries the streams a builtin may write to. Builtins hold no other
// state; anything else they touch lives in the OS (working directory,
// environment).
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Builtin is a stateless handler for a command that short-circuits before
// any process is created. The returned error is ErrExit to end the session
// or nil; builtins report their own failures to Env.Stderr.
type Builtin func(env Env, args []string) error

// DefaultBuiltins returns the standard builtin set. The map is a plain
// value handed to NewShell; drivers may extend or replace it without
// touching shared state.
func DefaultBuiltins() map[string]Builtin {
	return map[string]Builtin{
		"cd":   Cd,
		"pwd":  Pwd,
		"exit": Exit,
	}
}

// Cd changes the working directory. With no argument or "~" it moves to the
// user's home directory, with "/" to the root, and otherwise to the literal
// path given.
func Cd(env Env, args []string) error {
	var target string
	switch {
	case len(args) < 2 || args[1] == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(env.Stderr, "cd: %v\n", err)
			return nil
		}
		target = home
	case args[1] == "/":
		target = "/"
	default:
		target = args[1]
	}

	if err := os.Chdir(target); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			fmt.Fprintf(env.Stderr, "cd %s: No such file or directory\n", target)
		case errors.Is(err, fs.ErrPermission):
			fmt.Fprintf(env.Stderr, "cd %s: Permission denied\n", target)
		default:
			fmt.Fprintf(env.Stderr, "cd %s: %v\n", target, err)
		}
	}
	return nil
}

// Pwd prints the working directory.
func Pwd(env Env, args []string) error {
	opts := getopt.New()
	opts.Bool('L', "print the logical working directory")
	physical := opts.Bool('P', "print the physical directory, resolving symlinks")

	if err := opts.Getopt(args, nil); err != nil {
		fmt.Fprintln(env.Stderr, err)
		fmt.Fprintln(env.Stderr, "usage: pwd [-LP]")
		return nil
	}

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(env.Stderr, "pwd: %v\n", err)
		return nil
	}
	if *physical {
		if resolved, err := filepath.EvalSymlinks(wd); err == nil {
			wd = resolved
		}
	}
	fmt.Fprintln(env.Stdout, wd)
	return nil
}

// Exit ends the session.
func Exit(env Env, args []string) error {
	return ErrExit
}
