package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/repository/atomicfile"
)

// ErrAlreadyRunning is returned when the PID file names a live monitor process.
var ErrAlreadyRunning = errors.New("another monitor instance is running")

// FindFunc looks a process up by PID. It returns a nil process when none exists.
type FindFunc func(pid int) (ps.Process, error)

// Guard owns the PID file of the running monitor.
type Guard struct {
	path string
	pid  int
}

// Acquire writes the PID file at path unless it names a live process running
// the same executable as this one. Stale PID files are replaced.
func Acquire(path string) (*Guard, error) {
	self, err := ps.FindProcess(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("inspect current process: %w", err)
	}

	executable := ""
	if self != nil {
		executable = self.Executable()
	}

	return acquire(path, os.Getpid(), executable, ps.FindProcess)
}

func acquire(path string, pid int, executable string, find FindFunc) (*Guard, error) {
	path = filepath.Clean(path)

	owner, err := readPID(path)
	if err != nil {
		return nil, err
	}

	if owner != 0 && owner != pid {
		process, findErr := find(owner)
		if findErr != nil {
			return nil, fmt.Errorf("inspect process %d: %w", owner, findErr)
		}

		if process != nil && process.Executable() == executable {
			return nil, fmt.Errorf("%w: pid %d (%s)", ErrAlreadyRunning, owner, path)
		}
	}

	data := []byte(strconv.Itoa(pid) + "\n")
	if err = atomicfile.Write(path, data, config.DefaultFilePermissions); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &Guard{path: path, pid: pid}, nil
}

// Release removes the PID file if it still belongs to this process.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}

	owner, err := readPID(g.path)
	if err != nil || owner != g.pid {
		return err
	}

	if err = os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}

	return nil
}

// readPID returns the PID stored at path, or zero when the file is missing or unreadable as a number.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil //nolint:nilerr // A garbled PID file is stale.
	}

	return pid, nil
}
