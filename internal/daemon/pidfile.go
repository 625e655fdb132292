package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// ErrPIDFileNotFound is returned when no PID file exists.
var ErrPIDFileNotFound = errors.New("pid file not found")

// ErrAlreadyRunning is returned by Claim when another scheduler is alive.
var ErrAlreadyRunning = errors.New("scheduler already running")

// PIDFile records the process ID of the running scheduler.
type PIDFile struct {
	path string
}

// NewPIDFile returns a PIDFile at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// DefaultPIDPath returns <dataDir>/searchsync.pid.
func DefaultPIDPath(dataDir string) string {
	return filepath.Join(dataDir, "searchsync.pid")
}

// Path returns the PID file path.
func (p *PIDFile) Path() string {
	return p.path
}

// Claim writes the current PID unless a live process already owns the file.
// A stale file left by a crashed scheduler is replaced.
func (p *PIDFile) Claim() error {
	if pid, err := p.Read(); err == nil && pid != os.Getpid() && processExists(pid) {
		return serrors.New(serrors.ErrCodeLockFailed, "scheduler already running", ErrAlreadyRunning).
			WithDetail("pid", strconv.Itoa(pid)).
			WithDetail("pid_file", p.path)
	}
	return p.Write()
}

// Write writes the current PID, creating the directory when needed.
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return serrors.StorageError("create pid directory", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return serrors.StorageError("write pid file", err)
	}
	return nil
}

// Read returns the stored PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, serrors.StorageError("read pid file", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, serrors.New(serrors.ErrCodeCorruptStorage, "invalid pid file", err).
			WithDetail("pid_file", p.path)
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return serrors.StorageError("remove pid file", err)
	}
	return nil
}

// IsRunning reports whether the stored PID belongs to a live process.
func (p *PIDFile) IsRunning() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	return processExists(pid)
}

// Signal sends sig to the stored process, e.g. SIGTERM from `daemon stop`.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return serrors.InternalError("find scheduler process", err)
	}
	if err := process.Signal(sig); err != nil {
		return serrors.InternalError("signal scheduler process", err).WithDetail("pid", strconv.Itoa(pid))
	}
	return nil
}

// processExists probes pid with signal 0; FindProcess always succeeds on Unix.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
