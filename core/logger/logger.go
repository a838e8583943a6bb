package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"
)

// LogEntry is one recorded event. Exactly one of the event fields is set.
type LogEntry struct {
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id"`

	SessionStart   *SessionStart   `json:"session_start,omitempty"`
	SessionEnd     *SessionEnd     `json:"session_end,omitempty"`
	LineExecuted   *LineExecuted   `json:"line_executed,omitempty"`
	StageExit      *StageExit      `json:"stage_exit,omitempty"`
	UnknownCommand *UnknownCommand `json:"unknown_command,omitempty"`
	Background     *Background     `json:"background,omitempty"`
}

// SessionStart marks the beginning of an interactive session.
type SessionStart struct {
	User       string `json:"user"`
	RemoteAddr string `json:"remote_addr,omitempty"`
}

// SessionEnd marks the end of an interactive session.
type SessionEnd struct {
	ExitStatus int `json:"exit_status"`
}

// LineExecuted records a command line handed to the orchestrator, after
// builtin dispatch.
type LineExecuted struct {
	Raw  string     `json:"raw"`
	Argv [][]string `json:"argv,omitempty"`
}

// StageExit records the wait status of one pipeline stage.
type StageExit struct {
	Pid    int `json:"pid"`
	Status int `json:"status"`
}

// UnknownCommand records a stage whose executable could not be resolved.
type UnknownCommand struct {
	Command string `json:"command"`
}

// Background records a process left running without a wait.
type Background struct {
	Pid int `json:"pid"`
}

// Logger records events as newline delimited JSON.
type Logger struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesLogger creates a logger that appends one JSON object per line
// to w. Writes are serialized; w does not need to be safe for concurrent
// use.
func NewJSONLinesLogger(w io.Writer) *Logger {
	return &Logger{enc: json.NewEncoder(w)}
}

func (l *Logger) record(entry *LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(entry)
}

// NewSession creates a session-scoped recorder with a fresh session ID.
// Start is not recorded until the caller invokes it.
func (l *Logger) NewSession() *SessionLog {
	return &SessionLog{
		logger: l,
		id:     fmt.Sprintf("%d-%08x", time.Now().Unix(), rand.Uint32()),
	}
}

// SessionLog records events for one session. A nil SessionLog discards all
// events, so callers never need to guard their recording sites.
type SessionLog struct {
	logger *Logger
	id     string
}

// ID returns the session identifier.
func (s *SessionLog) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

func (s *SessionLog) record(entry *LogEntry) {
	if s == nil || s.logger == nil {
		return
	}
	entry.Time = time.Now()
	entry.SessionID = s.id
	// Event logging is advisory; a failed write never fails the shell.
	_ = s.logger.record(entry)
}

func (s *SessionLog) Start(user, remoteAddr string) {
	s.record(&LogEntry{SessionStart: &SessionStart{User: user, RemoteAddr: remoteAddr}})
}

func (s *SessionLog) End(exitStatus int) {
	s.record(&LogEntry{SessionEnd: &SessionEnd{ExitStatus: exitStatus}})
}

func (s *SessionLog) LineExecuted(raw string, argv [][]string) {
	s.record(&LogEntry{LineExecuted: &LineExecuted{Raw: raw, Argv: argv}})
}

func (s *SessionLog) StageExit(pid, status int) {
	s.record(&LogEntry{StageExit: &StageExit{Pid: pid, Status: status}})
}

func (s *SessionLog) UnknownCommand(command string) {
	s.record(&LogEntry{UnknownCommand: &UnknownCommand{Command: command}})
}

func (s *SessionLog) Background(pid int) {
	s.record(&LogEntry{Background: &Background{Pid: pid}})
}

// ReadJSONLinesLog parses a newline delimited JSON log, invoking handler for
// each entry in order.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}
		handler(&logEntry)
	}
	return nil
}
