// Package lockfile guards a SQLite database file against a second CareConcierge process.
//
// The lock is an flock on a sidecar file next to the database, so the kernel releases it
// when the owning process exits for any reason.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Suffix is appended to the database path to name its lock file.
const Suffix = ".lock"

// Lock is a held database lock.
type Lock struct {
	file *os.File
	path string
}

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID     int
	Since   time.Time
	Running bool
}

// LockError reports that another process holds the lock.
type LockError struct {
	Path  string
	Owner *Owner
	Cause error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("database is in use by another CareConcierge process (lock file %s)", e.Path)
	switch {
	case e.Owner == nil:
	case e.Owner.Running:
		msg += fmt.Sprintf("; held by pid %d since %s", e.Owner.PID, e.Owner.Since.Format(time.RFC3339))
	default:
		msg += fmt.Sprintf("; pid %d is not running, remove %s if the lock is stale", e.Owner.PID, e.Path)
	}
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// PathFor returns the lock file path for a database path.
func PathFor(dbPath string) string {
	return dbPath + Suffix
}

// Acquire takes an exclusive, non-blocking lock for dbPath. The parent directory is
// created when missing.
func Acquire(dbPath string) (*Lock, error) {
	path := PathFor(dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		owner := readOwner(path)
		slog.Error("lockfile.Acquire: database locked", "path", path, "error", err)
		return nil, &LockError{Path: path, Owner: owner, Cause: err}
	}

	// The previous owner's record is only replaced once the lock is ours.
	if err := f.Truncate(0); err == nil {
		_, err = f.WriteAt([]byte(formatOwner(os.Getpid(), time.Now())), 0)
		if err != nil {
			slog.Warn("lockfile.Acquire: failed to record owner", "path", path, "error", err)
		}
	}
	slog.Debug("lockfile.Acquire: lock held", "path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "path", l.path, "error", err)
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	slog.Debug("Lock.Release: lock released", "path", l.path)
	return err
}

func formatOwner(pid int, since time.Time) string {
	return fmt.Sprintf("pid=%d\nsince=%s\n", pid, since.UTC().Format(time.RFC3339))
}

// parseOwner reads the key=value lines written by formatOwner. It returns nil when no pid
// is present.
func parseOwner(content string) *Owner {
	var o Owner
	for _, line := range strings.Split(content, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(val)
		case "since":
			o.Since, _ = time.Parse(time.RFC3339, val)
		}
	}
	if o.PID <= 0 {
		return nil
	}
	return &o
}

func readOwner(path string) *Owner {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	o := parseOwner(string(data))
	if o != nil {
		o.Running = processRunning(o.PID)
	}
	return o
}

// processRunning checks pid with signal 0.
func processRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
