package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(prev) })

	// The tempdir may itself be behind a symlink (e.g. /tmp on darwin).
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}

func TestDefaultBuiltins(t *testing.T) {
	builtins := DefaultBuiltins()
	for _, name := range []string{"cd", "pwd", "exit"} {
		assert.Contains(t, builtins, name)
	}
}

func TestCd(t *testing.T) {
	base := chdirTemp(t)
	require.NoError(t, os.Mkdir(filepath.Join(base, "sub"), 0755))

	var stderr bytes.Buffer
	env := Env{Stdout: &stderr, Stderr: &stderr}

	t.Run("literal path", func(t *testing.T) {
		require.NoError(t, Cd(env, []string{"cd", filepath.Join(base, "sub")}))
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "sub"), wd)
		assert.Empty(t, stderr.String())
	})

	t.Run("root", func(t *testing.T) {
		require.NoError(t, Cd(env, []string{"cd", "/"}))
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, "/", wd)
	})

	t.Run("home on tilde", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		require.NoError(t, Cd(env, []string{"cd", "~"}))
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, home, wd)
	})

	t.Run("home with no argument", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		require.NoError(t, os.Chdir("/"))
		require.NoError(t, Cd(env, []string{"cd"}))
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, home, wd)
	})

	t.Run("missing directory", func(t *testing.T) {
		stderr.Reset()
		require.NoError(t, Cd(env, []string{"cd", filepath.Join(base, "does-not-exist")}))
		assert.Contains(t, stderr.String(), "No such file or directory")
	})
}

func TestPwd(t *testing.T) {
	dir := chdirTemp(t)

	var stdout, stderr bytes.Buffer
	require.NoError(t, Pwd(Env{Stdout: &stdout, Stderr: &stderr}, []string{"pwd"}))

	assert.Empty(t, stderr.String())
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd+"\n", stdout.String())

	stdout.Reset()
	require.NoError(t, Pwd(Env{Stdout: &stdout, Stderr: &stderr}, []string{"pwd", "-P"}))
	assert.Equal(t, dir+"\n", stdout.String())
}

func TestExit(t *testing.T) {
	err := Exit(Env{}, []string{"exit"})
	assert.ErrorIs(t, err, ErrExit)
}

func TestBuiltinsAreValues(t *testing.T) {
	// Two drivers never share dispatch state: mutating one map must not
	// affect another.
	a := DefaultBuiltins()
	b := DefaultBuiltins()

	a["extra"] = func(env Env, args []string) error { return nil }

	assert.Contains(t, a, "extra")
	assert.NotContains(t, b, "extra")
}

func TestPwdRejectsUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, Pwd(Env{Stdout: &stdout, Stderr: &stderr}, []string{"pwd", "-Z"}))

	assert.Empty(t, stdout.String())
	assert.True(t, strings.Contains(stderr.String(), "usage: pwd"))
}
