// Package daemonrunner enforces single-process ownership of a nest
// root: only one Engine process may hold the nest's data at a time.
package daemonrunner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNestLocked is returned when another process already holds the
// nest lock.
var ErrNestLocked = errors.New("daemonrunner: nest lock already held by another process")

// lockInfo is the metadata persisted into nest.lock, useful for a
// human inspecting why a nest root appears busy.
type lockInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// NestLock represents a held exclusive lock on a nest root.
type NestLock struct {
	file *os.File
}

// Close releases the lock. Safe to call once.
func (l *NestLock) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// AcquireNestLock acquires an exclusive, non-blocking lock on
// <nestRoot>/nest.lock, also writing a nest.pid file for visibility.
// It returns ErrNestLocked if another process already holds it.
func AcquireNestLock(nestRoot string) (*NestLock, error) {
	if err := os.MkdirAll(nestRoot, 0o755); err != nil {
		return nil, fmt.Errorf("daemonrunner: create nest root: %w", err)
	}

	lockPath := filepath.Join(nestRoot, "nest.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("daemonrunner: open lock file: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrNestLocked) {
			return nil, ErrNestLocked
		}
		return nil, fmt.Errorf("daemonrunner: lock file: %w", err)
	}

	info := lockInfo{PID: os.Getpid(), StartedAt: time.Now().UTC()}
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
	_ = f.Sync()

	pidPath := filepath.Join(nestRoot, "nest.pid")
	_ = os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600)

	return &NestLock{file: f}, nil
}
