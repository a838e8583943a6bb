// Package core wires the shell driver to network sessions.
package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gliderlabs/ssh"
	"github.com/juju/ratelimit"
	"github.com/spf13/afero"

	"josephlewis.net/pipesh/core/config"
	"josephlewis.net/pipesh/core/logger"
	"josephlewis.net/pipesh/core/proc"
)

// Server exposes the shell over SSH. Each accepted session runs the same
// driver used on the local terminal, with the session as its streams.
type Server struct {
	configuration *config.Configuration
	logger        *logger.Logger
	toClose       []io.Closer
	sshServer     *ssh.Server
}

// NewServer creates a server from the configuration. Session events are
// recorded to the configuration's event log.
func NewServer(configuration *config.Configuration) (*Server, error) {
	logFd, err := configuration.OpenAppLog()
	if err != nil {
		return nil, err
	}

	server := &Server{
		configuration: configuration,
		logger:        logger.NewJSONLinesLogger(logFd),
		toClose:       []io.Closer{logFd},
	}

	server.sshServer = &ssh.Server{
		Addr: fmt.Sprintf(":%d", configuration.SSHPort),
		Handler: func(s ssh.Session) {
			server.HandleConnection(s)
		},
		PasswordHandler: func(ctx ssh.Context, password string) bool {
			expected, ok := configuration.GetPassword(ctx.User())
			if !ok {
				// Burn the comparison anyway so unknown users are
				// indistinguishable from bad passwords.
				subtle.ConstantTimeCompare([]byte(password), []byte(password))
				return false
			}
			return 1 == subtle.ConstantTimeCompare([]byte(password), []byte(expected))
		},
	}
	if banner := configuration.SSHBanner; banner != "" {
		server.sshServer.BannerHandler = func(ctx ssh.Context) string {
			return banner
		}
	}
	server.sshServer.SetOption(ssh.HostKeyFile(configuration.HostKeyPath()))

	return server, nil
}

// HandleConnection runs one shell session over s.
func (server *Server) HandleConnection(s ssh.Session) {
	sessionLog := server.logger.NewSession()
	sessionLog.Start(s.User(), s.RemoteAddr().String())

	out := server.sessionWriter(s)
	_, _, isPty := s.Pty()

	driver, err := NewShell(ShellOptions{
		Stdin:  s,
		Stdout: out,
		Stderr: out,
		// The read loop owns the session stream, so foreground
		// processes get an empty stdin unless piped or redirected.
		ProcStdin:  nil,
		Prompt:     server.configuration.Prompt,
		Builtins:   DefaultBuiltins(),
		Resolver:   server.resolver(),
		Log:        sessionLog,
		IsTerminal: isPty,
		Fatal: func(err error) {
			// A process-creation failure ends the session, not the
			// server.
			fmt.Fprintf(out, "pipesh: %v\n", err)
			sessionLog.End(1)
			s.Exit(1)
		},
	})
	if err != nil {
		log.Printf("session setup failed: %v", err)
		s.Exit(1)
		return
	}
	defer driver.Close()

	status := driver.Run()
	sessionLog.End(status)
	s.Exit(status)
}

// sessionWriter wraps session output in the configured rate limit.
func (server *Server) sessionWriter(s ssh.Session) io.Writer {
	rate := server.configuration.SessionRateLimit
	if rate <= 0 {
		return s
	}
	bucket := ratelimit.NewBucketWithRate(float64(rate), rate)
	return ratelimit.Writer(s, bucket)
}

// StageResolver builds a resolver over the host filesystem whose PATH falls
// back to the configured default when the environment has none.
func StageResolver(configuration *config.Configuration) *proc.Resolver {
	return proc.NewResolverFs(afero.NewOsFs(), func(key string) string {
		value := os.Getenv(key)
		if value == "" && key == "PATH" {
			return configuration.DefaultPath
		}
		return value
	})
}

func (server *Server) resolver() *proc.Resolver {
	return StageResolver(server.configuration)
}

// ListenAndServe starts the server on the configured port.
func (server *Server) ListenAndServe() error {
	return server.sshServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (server *Server) Shutdown(ctx context.Context) error {
	var lastErr error
	if err := server.sshServer.Shutdown(ctx); err != nil {
		lastErr = err
	}
	for _, c := range server.toClose {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
